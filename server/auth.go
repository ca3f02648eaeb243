package server

// Account is a single configured login.
// An empty Password means the account logs in without a PASS command.
type Account struct {
	Name     string
	Password string
}

// Credentials is the read-only account list shared by every session.
//
// It is built once at startup and never modified afterwards, so it can be
// read from any number of session goroutines without locking.
type Credentials struct {
	admin *Account
	users []Account
}

// NewCredentials copies admin (may be nil) and users into a new Credentials.
func NewCredentials(admin *Account, users []Account) *Credentials {
	c := &Credentials{
		users: append([]Account(nil), users...),
	}
	if admin != nil {
		a := *admin
		c.admin = &a
	}
	return c
}

// Lookup finds an account by name. The admin entry is checked before the
// user list.
func (c *Credentials) Lookup(name string) (acct Account, isAdmin, ok bool) {
	if c == nil {
		return Account{}, false, false
	}
	if c.admin != nil && c.admin.Name == name {
		return *c.admin, true, true
	}
	for _, u := range c.users {
		if u.Name == name {
			return u, false, true
		}
	}
	return Account{}, false, false
}

// Len returns the number of configured accounts, admin included.
func (c *Credentials) Len() int {
	if c == nil {
		return 0
	}
	n := len(c.users)
	if c.admin != nil {
		n++
	}
	return n
}
