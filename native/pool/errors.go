package pool

import "errors"

// Validation failures. These reject a call before any state is touched.
var (
	ErrZeroAddress        = errors.New("pool: zero address")
	ErrAmountBounds       = errors.New("pool: amount outside contribution bounds")
	ErrValueMismatch      = errors.New("pool: paid value does not match amount")
	ErrBelowMinWithdrawal = errors.New("pool: amount below minimum withdrawal")
	ErrExceedsDaily       = errors.New("pool: amount exceeds today's contribution")
)

// Authorization failures.
var ErrUnauthorized = errors.New("pool: caller lacks required role")

// State failures.
var (
	ErrOutsideWindow          = errors.New("pool: outside distribution window")
	ErrAlreadyDistributed     = errors.New("pool: epoch already distributed")
	ErrDistributionInProgress = errors.New("pool: distribution already in progress")
	ErrNotInProgress          = errors.New("pool: no distribution in progress")
	ErrAlreadyReceiver        = errors.New("pool: already registered as receiver")
	ErrNotReceiver            = errors.New("pool: not registered as receiver")
	ErrContributedToday       = errors.New("pool: contributors cannot register as receivers")
)

// Quota failures.
var (
	ErrCooldownActive           = errors.New("pool: action cooldown active")
	ErrReceiverCooldownActive   = errors.New("pool: receiver pool cooldown active")
	ErrWithdrawalCooldownActive = errors.New("pool: withdrawal cooldown active")
	ErrDailyTxQuota             = errors.New("pool: daily transaction quota exhausted")
	ErrEntryQuota               = errors.New("pool: daily entry quota exhausted")
	ErrExitQuota                = errors.New("pool: daily exit quota exhausted")
	ErrWithdrawalQuota          = errors.New("pool: daily withdrawal quota exhausted")
	ErrDailyContributionCap     = errors.New("pool: daily contribution cap exceeded")
)

// Resource failures.
var (
	ErrInsufficientBalance   = errors.New("pool: insufficient balance")
	ErrInsufficientPool      = errors.New("pool: amount exceeds pool total")
	ErrEmptyPool             = errors.New("pool: pool is empty")
	ErrNoReceivers           = errors.New("pool: no receivers registered")
	ErrTooManyReceivers      = errors.New("pool: receiver set full")
	ErrBelowMinDistributable = errors.New("pool: pool below distributable minimum")
)

// Transfer failure, surfaced only from the withdrawal path. Inside batch and
// retry processing a failed delivery becomes a FailedTransfer record instead.
var ErrTransferFailed = errors.New("pool: transfer failed")

// Retry failures.
var (
	ErrNoFailedTransfer = errors.New("pool: no failed transfer record")
	ErrRetryTooEarly    = errors.New("pool: retry backoff not elapsed")
	ErrRetriesExhausted = errors.New("pool: retry attempts exhausted")
)

// Category classifies engine errors for transport layers.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryValidation
	CategoryAuthorization
	CategoryState
	CategoryQuota
	CategoryResource
	CategoryTransfer
	CategoryRetry
)

// Categorize maps an engine error to its taxonomy bucket.
func Categorize(err error) Category {
	switch {
	case err == nil:
		return CategoryUnknown
	case errors.Is(err, ErrZeroAddress),
		errors.Is(err, ErrAmountBounds),
		errors.Is(err, ErrValueMismatch),
		errors.Is(err, ErrBelowMinWithdrawal),
		errors.Is(err, ErrExceedsDaily):
		return CategoryValidation
	case errors.Is(err, ErrUnauthorized):
		return CategoryAuthorization
	case errors.Is(err, ErrOutsideWindow),
		errors.Is(err, ErrAlreadyDistributed),
		errors.Is(err, ErrDistributionInProgress),
		errors.Is(err, ErrNotInProgress),
		errors.Is(err, ErrAlreadyReceiver),
		errors.Is(err, ErrNotReceiver),
		errors.Is(err, ErrContributedToday):
		return CategoryState
	case errors.Is(err, ErrCooldownActive),
		errors.Is(err, ErrReceiverCooldownActive),
		errors.Is(err, ErrWithdrawalCooldownActive),
		errors.Is(err, ErrDailyTxQuota),
		errors.Is(err, ErrEntryQuota),
		errors.Is(err, ErrExitQuota),
		errors.Is(err, ErrWithdrawalQuota),
		errors.Is(err, ErrDailyContributionCap):
		return CategoryQuota
	case errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrInsufficientPool),
		errors.Is(err, ErrEmptyPool),
		errors.Is(err, ErrNoReceivers),
		errors.Is(err, ErrTooManyReceivers),
		errors.Is(err, ErrBelowMinDistributable):
		return CategoryResource
	case errors.Is(err, ErrTransferFailed):
		return CategoryTransfer
	case errors.Is(err, ErrNoFailedTransfer),
		errors.Is(err, ErrRetryTooEarly),
		errors.Is(err, ErrRetriesExhausted):
		return CategoryRetry
	default:
		return CategoryUnknown
	}
}
