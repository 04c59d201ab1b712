package nginx

import (
	"context"
	"fmt"
	"io"

	"github.com/evanofslack/dns-whitelist-sync/internal/entry"
	"github.com/evanofslack/dns-whitelist-sync/internal/export"
)

// ACL is an nginx access list meant to be pulled in with an include
// directive inside a server or location block.
type ACL struct {
	Allow []Rule
}

type Rule struct {
	Address string
	Comment string
}

type Adaptor struct{}

func (Adaptor) Schema(entries []entry.Entry, _ string) (ACL, error) {
	if _, err := export.Addresses(entries); err != nil {
		return ACL{}, err
	}
	var acl ACL
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.LatestIP == "" || seen[e.LatestIP] {
			continue
		}
		seen[e.LatestIP] = true
		acl.Allow = append(acl.Allow, Rule{Address: e.LatestIP, Comment: e.Name})
	}
	return acl, nil
}

type FileRepository struct{}

func (FileRepository) Save(ctx context.Context, acl ACL, path string) error {
	return export.WriteFile(path, func(w io.Writer) error {
		return Write(w, acl)
	})
}

func Write(w io.Writer, acl ACL) error {
	if _, err := io.WriteString(w, "# Generated by dns-whitelist-sync. Changes will be overwritten.\n"); err != nil {
		return err
	}
	for _, r := range acl.Allow {
		if _, err := fmt.Fprintf(w, "allow %s; # %s\n", r.Address, r.Comment); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "deny all;\n")
	return err
}
