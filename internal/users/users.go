// Package users turns raw users-endpoint responses into domain records.
package users

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samvad-hq/userloader/internal/domain"
	"github.com/samvad-hq/userloader/pkg/httpclient"
	"github.com/samvad-hq/userloader/pkg/loader"
	"github.com/tidwall/gjson"
)

// ErrNoUsers is returned when the selected JSON node is neither an array nor an object.
var ErrNoUsers = errors.New("users: response holds no user records")

// Decode parses body and returns the user records found at path (a gjson path; empty selects
// the document root). A single object is treated as a one-element list.
func Decode(body []byte, path string) ([]domain.User, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decode users: invalid json")
	}

	node := gjson.ParseBytes(body)
	if path = strings.TrimSpace(path); path != "" {
		node = node.Get(path)
		if !node.Exists() {
			return nil, fmt.Errorf("decode users: path %q not found", path)
		}
	}

	switch {
	case node.IsArray():
		out := make([]domain.User, 0, len(node.Array()))
		for i, item := range node.Array() {
			if !item.IsObject() {
				return nil, fmt.Errorf("decode users: element %d is not an object", i)
			}
			var u domain.User
			if err := json.Unmarshal([]byte(item.Raw), &u); err != nil {
				return nil, fmt.Errorf("decode users: element %d: %w", i, err)
			}
			out = append(out, u)
		}
		return out, nil
	case node.IsObject():
		var u domain.User
		if err := json.Unmarshal([]byte(node.Raw), &u); err != nil {
			return nil, fmt.Errorf("decode users: %w", err)
		}
		return []domain.User{u}, nil
	default:
		return nil, ErrNoUsers
	}
}

// FromResponse decodes the users carried by resp.
func FromResponse(resp httpclient.Response, path string) ([]domain.User, error) {
	if resp == nil {
		return nil, nil
	}
	return Decode(resp.Body(), path)
}

// Check returns a loader response check that rejects bodies Decode cannot read.
func Check(path string) loader.ResponseCheck {
	return func(resp httpclient.Response) error {
		_, err := FromResponse(resp, path)
		return err
	}
}

// Names returns the display names in order, skipping blank ones.
func Names(list []domain.User) []string {
	names := make([]string, 0, len(list))
	for _, u := range list {
		if n := strings.TrimSpace(u.Name); n != "" {
			names = append(names, n)
		}
	}
	return names
}
