package domain

// TxType classifies a monetary movement.
type TxType string

const (
	TxTypeSend     TxType = "SEND"
	TxTypeWithdraw TxType = "WITHDRAW"
	TxTypeAirdrop  TxType = "AIRDROP"
)

// TxStatus is the lifecycle state of a transaction. PENDING is the only
// non-terminal state; VERIFIED may still move to WITHDRAWING when an
// external payout is involved.
type TxStatus string

const (
	TxStatusPending     TxStatus = "PENDING"
	TxStatusVerified    TxStatus = "VERIFIED"
	TxStatusFailed      TxStatus = "FAILED"
	TxStatusWithdrawing TxStatus = "WITHDRAWING"
)

// WalletKind is the role a value plays in a transfer, not an account type.
type WalletKind string

const (
	WalletPersonal         WalletKind = "PERSONAL"
	WalletCastcleAirdrop   WalletKind = "CASTCLE_AIRDROP"
	WalletAds              WalletKind = "ADS"
	WalletFee              WalletKind = "FEE"
	WalletExternalWithdraw WalletKind = "EXTERNAL_WITHDRAW"
)

// CampaignType identifies a promotional reward pool.
type CampaignType string

const (
	CampaignFriendReferral CampaignType = "FRIEND_REFERRAL"
	CampaignVerifyMobile   CampaignType = "VERIFY_MOBILE"
)

// Campaign visibility.
const (
	CampaignVisibilityPublished = "published"
	CampaignVisibilityHidden    = "hidden"
)

// Failure messages are part of the external contract: callers only ever see
// the terminal status plus one of these strings.
const (
	FailureInvalidWalletType = "Invalid wallet type"
	FailureInsufficientFunds = "Insufficient funds"
	FailureInvalidChecksum   = "Invalid checksum"
)
