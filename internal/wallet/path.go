package wallet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tyler-smith/go-bip32"
)

// PathComponent is one step of a derivation path.
type PathComponent struct {
	Index    uint32 // below 2^31
	Hardened bool
}

// ChildIndex returns the BIP-32 child number, with the hardened offset applied.
func (c PathComponent) ChildIndex() uint32 {
	if c.Hardened {
		return c.Index + bip32.FirstHardenedChild
	}
	return c.Index
}

func (c PathComponent) String() string {
	if c.Hardened {
		return strconv.FormatUint(uint64(c.Index), 10) + "'"
	}
	return strconv.FormatUint(uint64(c.Index), 10)
}

// DerivationPath is an immutable BIP-32 path such as m/44'/195'/0'/0/0.
type DerivationPath struct {
	components []PathComponent
}

// ParseDerivationPath parses "m/44'/0'/0'/0/0". A leading "m" is optional;
// hardened steps are marked with ', h or H. "m" alone is the master key.
func ParseDerivationPath(s string) (DerivationPath, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return DerivationPath{}, derivationErr("empty derivation path", nil)
	}

	parts := strings.Split(raw, "/")
	if parts[0] == "m" || parts[0] == "M" {
		parts = parts[1:]
	}

	comps := make([]PathComponent, 0, len(parts))
	for i, part := range parts {
		c, err := parseComponent(part)
		if err != nil {
			return DerivationPath{}, derivationErr(fmt.Sprintf("path %q component %d", s, i+1), err)
		}
		comps = append(comps, c)
	}
	return DerivationPath{components: comps}, nil
}

func parseComponent(part string) (PathComponent, error) {
	var c PathComponent
	if n := len(part); n > 0 {
		switch part[n-1] {
		case '\'', 'h', 'H':
			c.Hardened = true
			part = part[:n-1]
		}
	}
	if part == "" {
		return c, fmt.Errorf("empty index")
	}
	for _, r := range part {
		if r < '0' || r > '9' {
			return c, fmt.Errorf("invalid index %q", part)
		}
	}
	v, err := strconv.ParseUint(part, 10, 32)
	if err != nil || v >= uint64(bip32.FirstHardenedChild) {
		return c, fmt.Errorf("index %q out of range", part)
	}
	c.Index = uint32(v)
	return c, nil
}

// BIP44 returns m/44'/coin'/account'/change/index.
func BIP44(coinType, account, change, index uint32) DerivationPath {
	return DerivationPath{components: []PathComponent{
		{Index: 44, Hardened: true},
		{Index: coinType, Hardened: true},
		{Index: account, Hardened: true},
		{Index: change},
		{Index: index},
	}}
}

// Components returns a copy of the path steps.
func (p DerivationPath) Components() []PathComponent {
	out := make([]PathComponent, len(p.components))
	copy(out, p.components)
	return out
}

// Depth is the number of steps below the master key.
func (p DerivationPath) Depth() int { return len(p.components) }

// HasHardened reports whether any step is hardened.
func (p DerivationPath) HasHardened() bool {
	for _, c := range p.components {
		if c.Hardened {
			return true
		}
	}
	return false
}

func (p DerivationPath) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, c := range p.components {
		b.WriteByte('/')
		b.WriteString(c.String())
	}
	return b.String()
}
