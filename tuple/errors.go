package tuple

import "errors"

var (
	ErrUnknownFamily = errors.New("unknown address family")
	ErrIPv6Disabled  = errors.New("ipv6 is disabled")
	ErrSaddrUnset    = errors.New("source address unset")
	ErrDaddrUnset    = errors.New("destination address unset")
	ErrPortUnset     = errors.New("port unset")
)

var categories = []struct {
	err  error
	name string
}{
	{ErrUnknownFamily, "family"},
	{ErrIPv6Disabled, "ipv6_disabled"},
	{ErrSaddrUnset, "saddr"},
	{ErrDaddrUnset, "daddr"},
	{ErrPortUnset, "port"},
}

// Categories names the failure categories err is made up of.
func Categories(err error) []string {
	cc := []string{}
	for _, c := range categories {
		if errors.Is(err, c.err) {
			cc = append(cc, c.name)
		}
	}
	return cc
}

// CategoryNames lists every category Categories may return.
func CategoryNames() []string {
	nn := make([]string, 0, len(categories))
	for _, c := range categories {
		nn = append(nn, c.name)
	}
	return nn
}
