package claims

import "errors"

var (
	ErrUnauthenticated         = errors.New("authentication required")
	ErrForbidden               = errors.New("caller may not act on this claim")
	ErrNotFound                = errors.New("not found")
	ErrSelfClaim               = errors.New("cannot claim your own post")
	ErrDuplicateClaim          = errors.New("a claim on this post already exists")
	ErrRateLimited             = errors.New("too many claims, try again later")
	ErrInvalidTransition       = errors.New("claim cannot move to that state")
	ErrClaimNotApproved        = errors.New("claim is not approved")
	ErrHandoffAlreadyGenerated = errors.New("handoff code already generated")
	ErrInvalidHandoffCode      = errors.New("invalid handoff code")
	ErrValidation              = errors.New("invalid input")
)
