package domain

import (
	"slices"
	"strings"
)

// Role is a closed set of actor roles carried in auth claims.
type Role string

const (
	RoleCustomer       Role = "customer"
	RoleVendor         Role = "vendor"
	RoleAdmin          Role = "admin"
	RoleSuperAdmin     Role = "superadmin"
	RoleProductManager Role = "product_manager"
	RoleOrderManager   Role = "order_manager"
)

// Capability names a permission checked by handlers and services.
type Capability string

const (
	CapOrdersReadAny      Capability = "orders:read_any"
	CapOrdersUpdateStatus Capability = "orders:update_status"
	CapPaymentsReadAny    Capability = "payments:read_any"
	CapProductsManage     Capability = "products:manage"
	CapProductsManageOwn  Capability = "products:manage_own"
	CapPromotionsManage   Capability = "promotions:manage"
	CapReturnsManage      Capability = "returns:manage"
	CapShippingManage     Capability = "shipping:manage"
)

var allCapabilities = []Capability{
	CapOrdersReadAny,
	CapOrdersUpdateStatus,
	CapPaymentsReadAny,
	CapProductsManage,
	CapProductsManageOwn,
	CapPromotionsManage,
	CapReturnsManage,
	CapShippingManage,
}

var roleCapabilities = map[Role][]Capability{
	RoleCustomer:       nil,
	RoleVendor:         {CapProductsManageOwn},
	RoleAdmin:          allCapabilities,
	RoleSuperAdmin:     allCapabilities,
	RoleProductManager: {CapProductsManage, CapPromotionsManage, CapShippingManage},
	RoleOrderManager:   {CapOrdersReadAny, CapOrdersUpdateStatus, CapPaymentsReadAny, CapReturnsManage},
}

// ParseRole normalises a claim value into a known role.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := roleCapabilities[role]
	return role, ok
}

// CapabilitiesOf returns the capabilities granted to role.
func CapabilitiesOf(role Role) []Capability {
	return slices.Clone(roleCapabilities[role])
}

// HasCapability reports whether any of roles grants capability.
func HasCapability(roles []Role, capability Capability) bool {
	for _, role := range roles {
		if slices.Contains(roleCapabilities[role], capability) {
			return true
		}
	}
	return false
}
