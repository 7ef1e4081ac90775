package performative

// 各 performative 参数列表中的字段位置（仅列出常用者）

// open
const (
	OpenContainerID = iota
	OpenHostname
	OpenMaxFrameSize
	OpenChannelMax
	OpenIdleTimeOut
	OpenOutgoingLocales
	OpenIncomingLocales
	OpenOfferedCapabilities
	OpenDesiredCapabilities
	OpenProperties
)

// begin
const (
	BeginRemoteChannel = iota
	BeginNextOutgoingID
	BeginIncomingWindow
	BeginOutgoingWindow
	BeginHandleMax
	BeginOfferedCapabilities
	BeginDesiredCapabilities
	BeginProperties
)

// transfer
const (
	TransferHandle = iota
	TransferDeliveryID
	TransferDeliveryTag
	TransferMessageFormat
	TransferSettled
	TransferMore
	TransferRcvSettleMode
	TransferState
	TransferResume
	TransferAborted
	TransferBatchable
)

// end / close
const (
	EndError   = 0
	CloseError = 0
)
