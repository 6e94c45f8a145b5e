package queue

type MailKind string

const (
	MailVerification MailKind = "verification"
	MailWelcome      MailKind = "welcome"
	MailResetRequest MailKind = "reset_request"
	MailResetSuccess MailKind = "reset_success"
)

// RoutingKey is the topic key a mail event is published under.
func (k MailKind) RoutingKey() string { return "mail." + string(k) }

// MailEvent asks the notifier to send one email. Only the fields the kind
// needs are set: Code for verification, Name for welcome, Link for reset.
type MailEvent struct {
	Kind MailKind `json:"kind"`
	To   string   `json:"to"`
	Name string   `json:"name,omitempty"`
	Code string   `json:"code,omitempty"`
	Link string   `json:"link,omitempty"`
}
