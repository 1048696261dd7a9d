package handlers

import "github.com/customeros/sitestack/interfaces"

type APIHandlers struct {
	Domains *DomainHandler
}

func InitHandlers(domainService interfaces.DomainService) *APIHandlers {
	return &APIHandlers{
		Domains: NewDomainHandler(domainService),
	}
}
