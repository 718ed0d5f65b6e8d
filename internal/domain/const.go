package domain

const (
	// Blockchain constants
	ETHEREUM_ZERO_ADDRESS = "0x0000000000000000000000000000000000000000"

	// FAR_FUTURE_FORECLOSURE_TIME is stored as the foreclosure time when the steward
	// contract cannot report one
	FAR_FUTURE_FORECLOSURE_TIME int64 = 4894893805
)
