package core

const (
	RPKIContextKeyRequestID string = "rpki/ctx/request-id"
	RPKIContextKeySource    string = "rpki/ctx/source"
	RPKIContextKeyCAID      string = "rpki/ctx/ca-id"

	RPKIContextKeyEventType    string = "rpki/ctx/cloudevent/type"
	RPKIContextKeyEventSubject string = "rpki/ctx/cloudevent/subject"
)
