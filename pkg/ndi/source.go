package ndi

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/zsiec/ndikit/pkg/ndi/native"
)

// AddressKind says how a source is reached.
type AddressKind int

const (
	AddressNone AddressKind = iota
	// AddressURL is used by NDI HX sources.
	AddressURL
	AddressIP
)

func (k AddressKind) String() string {
	switch k {
	case AddressURL:
		return "url"
	case AddressIP:
		return "ip"
	default:
		return "none"
	}
}

// Address is the network address of a source.
type Address struct {
	Kind  AddressKind `json:"kind"`
	Value string      `json:"value,omitempty"`
}

// ParseAddress classifies s: empty is no address, anything containing
// "://" is a URL and the rest is host:port.
func ParseAddress(s string) Address {
	switch {
	case s == "":
		return Address{}
	case strings.Contains(s, "://"):
		return Address{Kind: AddressURL, Value: s}
	default:
		return Address{Kind: AddressIP, Value: s}
	}
}

func (a Address) String() string { return a.Value }

// ContainsHost reports whether host occurs anywhere in the address.
func (a Address) ContainsHost(host string) bool {
	if a.Kind == AddressNone {
		return false
	}
	return strings.Contains(a.Value, host)
}

// Port returns the port, if the address carries one.
func (a Address) Port() (uint16, bool) {
	i := strings.LastIndexByte(a.Value, ':')
	if a.Kind == AddressNone || i < 0 {
		return 0, false
	}
	rest := a.Value[i+1:]
	if a.Kind == AddressURL {
		// The colon of "scheme://" is not a port separator.
		if strings.HasSuffix(a.Value[:i], "/") {
			return 0, false
		}
		rest, _, _ = strings.Cut(rest, "/")
	}
	p, err := strconv.ParseUint(rest, 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(p), true
}

// Host returns the address without scheme, port or path.
func (a Address) Host() (string, bool) {
	switch a.Kind {
	case AddressIP:
		host, _, _ := strings.Cut(a.Value, ":")
		return host, true
	case AddressURL:
		rest := a.Value
		if _, after, ok := strings.Cut(rest, "://"); ok {
			rest = after
		}
		rest, _, _ = strings.Cut(rest, ":")
		rest, _, _ = strings.Cut(rest, "/")
		return rest, rest != ""
	default:
		return "", false
	}
}

// Source is a discovered NDI source. Names usually read
// "MACHINE (Source Name)".
type Source struct {
	Name    string  `json:"name"`
	Address Address `json:"address"`
}

// NewSource builds a source from a name and a raw address string.
func NewSource(name, address string) Source {
	return Source{Name: name, Address: ParseAddress(address)}
}

func (s Source) String() string {
	if s.Address.Kind == AddressNone {
		return s.Name
	}
	return s.Name + "@" + s.Address.Value
}

// MatchesHost reports whether host occurs in the name or the address.
func (s Source) MatchesHost(host string) bool {
	return strings.Contains(s.Name, host) || s.Address.ContainsHost(host)
}

// IPAddress returns the host part of the address.
func (s Source) IPAddress() (string, bool) { return s.Address.Host() }

// Host is IPAddress.
func (s Source) Host() (string, bool) { return s.Address.Host() }

func sourceFromRaw(raw native.Source) (Source, error) {
	if raw.Name == nil {
		return Source{}, newError(ErrorTypeNullPointer, "source has a null name")
	}
	name := strings.ToValidUTF8(native.GoString(raw.Name), string(utf8.RuneError))
	addr := strings.ToValidUTF8(native.GoString(raw.Address), string(utf8.RuneError))
	return NewSource(name, addr), nil
}

// validate checks the source can cross the boundary as C strings.
func (s Source) validate() error {
	if strings.IndexByte(s.Name, 0) >= 0 || strings.IndexByte(s.Address.Value, 0) >= 0 {
		return newError(ErrorTypeInvalidCString, "source %q contains a NUL byte", s.Name)
	}
	return nil
}
