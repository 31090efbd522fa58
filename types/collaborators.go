package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// RoleAuthority is the external role/capability store. The pipeline never
// mutates roles, it only checks them.
type RoleAuthority interface {
	HasRole(role common.Hash, account common.Address) bool
}

// Well-known roles checked by the pipeline.
var (
	// RoleAdmin gates processor registration, orchestrator configuration and
	// gateway module authorization.
	RoleAdmin = crypto.Keccak256Hash([]byte("paygate.role.admin"))
	// RoleModuleManager gates per-module fee schedule changes.
	RoleModuleManager = crypto.Keccak256Hash([]byte("paygate.role.module-manager"))
)

// ServiceRegistry resolves per-module wired services by alias, e.g. the token
// validator a module has installed. The second return is false when the
// module has no service under that alias.
type ServiceRegistry interface {
	ModuleService(module ModuleID, alias string) (interface{}, bool)
}

// Service aliases resolved through the ServiceRegistry.
const (
	AliasTokenValidator = "token-validator"
)

// TokenValidator is the external token allow-list.
type TokenValidator interface {
	IsAllowed(token common.Address) bool
}
