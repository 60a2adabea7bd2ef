package middleware

import (
	"errors"
	"net/url"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/capitalize-ai/funnel-platform/internal/model"
)

// ValidateID validates a server-generated entity ID (funnel, resource,
// session).
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid ID format")
	}
	return nil
}

// ValidateName validates a funnel or resource name.
func ValidateName(name string) error {
	if len(name) == 0 {
		return errors.New("name cannot be empty")
	}
	if len(name) > 256 {
		return errors.New("name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("name must be valid UTF-8")
	}
	return nil
}

// ValidateMessageContent validates a visitor reply.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 10000 {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateTenantID validates a tenant ID from a public chat endpoint.
func ValidateTenantID(id string) error {
	if len(id) == 0 {
		return errors.New("tenant ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("tenant ID exceeds maximum length")
	}
	return nil
}

// ValidateLink validates a resource link.
func ValidateLink(link string) error {
	if link == "" {
		return errors.New("link cannot be empty")
	}
	u, err := url.Parse(link)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("link must be an http(s) URL")
	}
	return nil
}

// ValidateResourceType validates a resource type value.
func ValidateResourceType(t model.ResourceType) error {
	switch t {
	case model.ResourceTypeAffiliate, model.ResourceTypeMyProducts:
		return nil
	}
	return errors.New("invalid resource type")
}

// ValidateResourceCategory validates a resource category value.
func ValidateResourceCategory(c model.ResourceCategory) error {
	switch c {
	case model.ResourceCategoryPaid, model.ResourceCategoryFreeValue:
		return nil
	}
	return errors.New("invalid resource category")
}
