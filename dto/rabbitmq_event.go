package dto

type Event struct {
	Event    EventDetails  `json:"event"`
	Metadata EventMetadata `json:"metadata"`
}

type EventDetails struct {
	Id         string      `json:"id"`
	Tenant     string      `json:"tenant"`
	EntityId   string      `json:"entityId"`
	EntityType string      `json:"entityType"`
	EventType  string      `json:"eventType"`
	Data       interface{} `json:"data"`
}

type EventMetadata struct {
	UberTraceId string `json:"uber-trace-id"`
	AppSource   string `json:"appSource"`
	UserId      string `json:"userId"`
	UserEmail   string `json:"userEmail"`
	Timestamp   string `json:"timestamp"`
}

const EntityTypeDomain = "DOMAIN"

type DomainVerified struct {
	DomainID   string `json:"domainId"`
	ProjectID  string `json:"projectId"`
	Domain     string `json:"domain"`
	SSLState   string `json:"sslState"`
	VerifiedAt string `json:"verifiedAt"`
	// Companion is set when the domain was verified through its apex/www pair.
	Companion bool `json:"companion"`
}
