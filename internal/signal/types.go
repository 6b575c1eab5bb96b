package signal

// EnvelopeWrapper matches the signal-cli REST API receive payload
type EnvelopeWrapper struct {
	Envelope Envelope `json:"envelope"`
	Account  string   `json:"account"`
}

type Envelope struct {
	SourceNumber string       `json:"sourceNumber"`
	Source       string       `json:"source"`
	SourceUUID   string       `json:"sourceUuid"`
	Timestamp    int64        `json:"timestamp"`
	DataMessage  *DataMessage `json:"dataMessage"`
}

type DataMessage struct {
	Message   string     `json:"message"`
	Mentions  []Mention  `json:"mentions"`
	GroupInfo *GroupInfo `json:"groupInfo"`
	Quote     *Quote     `json:"quote"`
}

type GroupInfo struct {
	GroupID string `json:"groupId"`
}

type Mention struct {
	Start  int    `json:"start"`
	Length int    `json:"length"`
	Number string `json:"number"`
	UUID   string `json:"uuid"`
}

type Quote struct {
	ID         int64  `json:"id"`
	Author     string `json:"author"`
	AuthorUUID string `json:"authorUuid"`
	Text       string `json:"text"`
}

// Group is one entry of the groups listing
type Group struct {
	ID         string   `json:"id"`
	InternalID string   `json:"internal_id"`
	Name       string   `json:"name"`
	Members    []string `json:"members"`
}

// SendRequest is the body of POST /v2/send
type SendRequest struct {
	Message    string   `json:"message"`
	Number     string   `json:"number"`
	Recipients []string `json:"recipients"`
}
