package access

import (
	"bytes"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"royaltyPool/internal/poolerr"
)

// Role is a set of capability flags.
type Role uint8

const (
	RoleOwner Role = 1 << iota
	RoleMinter
	RolePauser
)

var roleNames = []struct {
	role Role
	name string
}{
	{RoleOwner, "owner"},
	{RoleMinter, "minter"},
	{RolePauser, "pauser"},
}

func (r Role) String() string {
	parts := make([]string, 0, len(roleNames))
	for _, entry := range roleNames {
		if r&entry.role != 0 {
			parts = append(parts, entry.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseRole maps a role name to its flag.
func ParseRole(name string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "owner", "admin", "owner_role", "default_admin_role":
		return RoleOwner, true
	case "minter", "minter_role":
		return RoleMinter, true
	case "pauser", "pauser_role":
		return RolePauser, true
	default:
		return 0, false
	}
}

// RoleChange is one entry of the grant/revoke audit log.
type RoleChange struct {
	Seq     uint64         `json:"seq"`
	Account common.Address `json:"account"`
	Role    Role           `json:"role"`
	Granted bool           `json:"granted"`
	Sender  common.Address `json:"sender"`
}

// Gate maps identities to explicit role flags. Nothing is inherited: holding RoleOwner does not
// imply RoleMinter.
type Gate struct {
	mu    sync.RWMutex
	roles map[common.Address]Role
	audit []RoleChange
}

// NewGate grants each of roles to deployer.
func NewGate(deployer common.Address, roles ...Role) *Gate {
	g := &Gate{roles: make(map[common.Address]Role)}
	for _, role := range roles {
		g.grant(deployer, role, deployer)
	}
	return g
}

// HasRole reports whether account holds every flag in role.
func (g *Gate) HasRole(account common.Address, role Role) bool {
	if role == 0 {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.roles[account]&role == role
}

// Require fails with ErrUnauthorized when account lacks role.
func (g *Gate) Require(account common.Address, role Role) error {
	if g.HasRole(account, role) {
		return nil
	}
	return poolerr.Wrapf(poolerr.ErrUnauthorized, "%s lacks %s", account.Hex(), role)
}

// Grant gives role to account. Only owners may grant.
func (g *Gate) Grant(caller common.Address, role Role, account common.Address) error {
	if err := g.Require(caller, RoleOwner); err != nil {
		return err
	}
	g.grant(account, role, caller)
	return nil
}

// Revoke removes role from account. Only owners may revoke.
func (g *Gate) Revoke(caller common.Address, role Role, account common.Address) error {
	if err := g.Require(caller, RoleOwner); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	current := g.roles[account]
	if current&role == 0 {
		return nil
	}
	next := current &^ role
	if next == 0 {
		delete(g.roles, account)
	} else {
		g.roles[account] = next
	}
	g.appendAudit(account, role, false, caller)
	return nil
}

func (g *Gate) grant(account common.Address, role Role, sender common.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.roles[account]&role == role {
		return
	}
	g.roles[account] |= role
	g.appendAudit(account, role, true, sender)
}

func (g *Gate) appendAudit(account common.Address, role Role, granted bool, sender common.Address) {
	g.audit = append(g.audit, RoleChange{
		Seq:     uint64(len(g.audit)) + 1,
		Account: account,
		Role:    role,
		Granted: granted,
		Sender:  sender,
	})
}

// Audit returns a copy of the grant/revoke log in order.
func (g *Gate) Audit() []RoleChange {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]RoleChange, len(g.audit))
	copy(out, g.audit)
	return out
}

// Members lists accounts holding role, sorted by address.
func (g *Gate) Members(role Role) []common.Address {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]common.Address, 0)
	for account, held := range g.roles {
		if held&role == role {
			out = append(out, account)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// Export returns the current assignment keyed by hex address.
func (g *Gate) Export() map[string]Role {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]Role, len(g.roles))
	for account, role := range g.roles {
		out[account.Hex()] = role
	}
	return out
}

// Import replaces the assignment. The audit log restarts with one grant entry per account.
func (g *Gate) Import(assignments map[string]Role) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roles = make(map[common.Address]Role, len(assignments))
	g.audit = nil
	keys := make([]string, 0, len(assignments))
	for key := range assignments {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		role := assignments[key]
		if role == 0 || !common.IsHexAddress(key) {
			continue
		}
		account := common.HexToAddress(key)
		g.roles[account] = role
		g.appendAudit(account, role, true, common.Address{})
	}
}
