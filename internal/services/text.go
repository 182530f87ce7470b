package services

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/jara-commerce/api/internal/domain"
)

var plainTextPolicy = bluemonday.StrictPolicy()

// sanitizeText strips markup from free text and collapses surrounding whitespace.
func sanitizeText(value string) string {
	cleaned := plainTextPolicy.Sanitize(value)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

func sanitizeAddress(addr domain.Address) domain.Address {
	addrType := domain.AddressType(strings.ToLower(strings.TrimSpace(string(addr.Type))))
	if addrType == "" {
		addrType = domain.AddressTypeHome
	}
	return domain.Address{
		Type:      addrType,
		FirstName: sanitizeText(addr.FirstName),
		LastName:  sanitizeText(addr.LastName),
		Street:    sanitizeText(addr.Street),
		City:      sanitizeText(addr.City),
		Province:  sanitizeText(addr.Province),
		Phone:     strings.TrimSpace(addr.Phone),
	}
}

func validateAddress(addr domain.Address, label string) []string {
	var missing []string
	if addr.FirstName == "" {
		missing = append(missing, label+".first_name")
	}
	if addr.Street == "" {
		missing = append(missing, label+".street")
	}
	if addr.City == "" {
		missing = append(missing, label+".city")
	}
	if addr.Province == "" {
		missing = append(missing, label+".province")
	}
	if addr.Phone == "" {
		missing = append(missing, label+".phone")
	}
	switch addr.Type {
	case domain.AddressTypeHome, domain.AddressTypeWork, domain.AddressTypeOther:
	default:
		missing = append(missing, label+".type")
	}
	return missing
}
