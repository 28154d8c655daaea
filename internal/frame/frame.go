package frame

// STOMP commands this client transmits or dispatches on. Commands outside
// this set are tolerated on the wire but ignored by the session.
const (
	CmdConnect     = "CONNECT"
	CmdConnected   = "CONNECTED"
	CmdDisconnect  = "DISCONNECT"
	CmdError       = "ERROR"
	CmdMessage     = "MESSAGE"
	CmdSend        = "SEND"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
)

const (
	HdrAcceptVersion = "accept-version"
	HdrAck           = "ack" // SUBSCRIBE, MESSAGE
	HdrContentLength = "content-length"
	HdrDestination   = "destination" // SEND, SUBSCRIBE, MESSAGE
	HdrHeartBeat     = "heart-beat"
	HdrHost          = "host"
	HdrId            = "id" // SUBSCRIBE, UNSUBSCRIBE
	HdrLogin         = "login"
	HdrMessage       = "message" // ERROR
	HdrPasscode      = "passcode"
)

// Header is a single key:value pair of a frame.
type Header struct {
	Name  string
	Value string
}

// Headers holds a frame's headers in insertion order. STOMP brokers are
// order-sensitive in principle, so the order headers are Set in is the order
// they appear on the wire.
type Headers []Header

func (h *Headers) Set(name, value string) {
	for i := range *h {
		if (*h)[i].Name == name {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, Header{Name: name, Value: value})
}

func (h Headers) Get(name string) (value string, ok bool) {
	for i := range h {
		if h[i].Name == name {
			return h[i].Value, true
		}
	}
	return "", false
}

// Frame is one STOMP protocol unit. A nil Body means the frame carries no
// body at all, which is distinct from an empty one.
type Frame struct {
	Command string
	Headers Headers
	Body    []byte
}

func New(command string) *Frame {
	return &Frame{Command: command}
}
