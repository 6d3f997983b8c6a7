package gateway

// Request operations understood by the gateway.
const (
	// ReqNoteAdd appends a data note to the device's notefile.
	ReqNoteAdd = "note.add"
	// ReqNoteTemplate registers the schema of future notes so the
	// gateway can encode them compactly over the air.
	ReqNoteTemplate = "note.template"
)

// TInt32 is the template type tag declaring a signed 32-bit integer
// field in a note.template body.
const TInt32 = 14

// Request is an outbound gateway request. ID is a correlation token
// echoed back in the matching response; zero means no reply is expected.
type Request struct {
	Req  string                 `json:"req"`
	File string                 `json:"file,omitempty"`
	ID   uint32                 `json:"id,omitempty"`
	Body map[string]interface{} `json:"body,omitempty"`
}

// Response is an inbound gateway response. An empty Err means success.
// Responses carrying a correlation ID belong to a specific request;
// others are informational and ignored by this service.
type Response struct {
	ID  uint32 `json:"id,omitempty"`
	Err string `json:"err,omitempty"`
}

// ResponseHandler consumes inbound responses. A nil response is the
// timeout sentinel, delivered exactly once for a request that expected a
// reply and never received one.
type ResponseHandler func(*Response)
