// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

// buntdbclient implements ClientStore from gopkg.in/oauth2.v3
// using BuntDB (https://github.com/tidwall/buntdb).
//
// Staff API clients are stored here. Each client is bound to the
// user id it acts for.
package buntdbclient

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/buntdb"
	"gopkg.in/oauth2.v3"
	"gopkg.in/oauth2.v3/models"
)

var (
	// DefaultTTL is the value used as TTL on buntdb.SetOptions.
	// Zero keeps clients until they are deleted.
	DefaultTTL time.Duration = 0
)

func New(path string) (*ClientStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	return &ClientStore{
		db: db,
	}, nil
}

type ClientStore struct {
	db *buntdb.DB
}

var _ oauth2.ClientStore = (*ClientStore)(nil)

func key(id, field string) string {
	return fmt.Sprintf("client:%s:%s", id, field)
}

func (cs *ClientStore) Close() error {
	return cs.db.Close()
}

func (cs *ClientStore) GetByID(id string) (oauth2.ClientInfo, error) {
	var cli models.Client
	cli.ID = id

	err := cs.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key(id, "secret"))
		if err != nil {
			return err
		}
		cli.Secret = v

		v, err = tx.Get(key(id, "domain"))
		if err != nil {
			return err
		}
		cli.Domain = v

		v, err = tx.Get(key(id, "user-id"))
		if err != nil {
			return err
		}
		cli.UserID = v
		return nil
	})
	if err != nil {
		var cli models.Client
		return &cli, fmt.Errorf("problem reading %s: %v", id, err)
	}
	return &cli, nil
}

// GetByUserID returns every client bound to userId.
func (cs *ClientStore) GetByUserID(userId string) ([]oauth2.ClientInfo, error) {
	var ids []string
	err := cs.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(key("*", "user-id"), func(k, v string) bool {
			if v == userId {
				id := strings.TrimSuffix(strings.TrimPrefix(k, "client:"), ":user-id")
				ids = append(ids, id)
			}
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("problem scanning for user %s: %v", userId, err)
	}

	var out []oauth2.ClientInfo
	for i := range ids {
		cli, err := cs.GetByID(ids[i])
		if err != nil {
			return nil, err
		}
		out = append(out, cli)
	}
	return out, nil
}

func (cs *ClientStore) Set(id string, cli oauth2.ClientInfo) error {
	if inc := cli.GetID(); id != inc {
		return fmt.Errorf("ClientStore: id's don't match, id=%s and cli=%s", id, inc)
	}

	err := cs.db.Update(func(tx *buntdb.Tx) error {
		opts := &buntdb.SetOptions{
			Expires: DefaultTTL > 0,
			TTL:     DefaultTTL,
		}
		_, _, err := tx.Set(key(id, "secret"), cli.GetSecret(), opts)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(key(id, "domain"), cli.GetDomain(), opts)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(key(id, "user-id"), cli.GetUserID(), opts)
		return err
	})
	if err != nil {
		return fmt.Errorf("problem updating %s: %v", id, err)
	}
	return nil
}

// DeleteByID removes a client. Deleting an unknown client is not an error.
func (cs *ClientStore) DeleteByID(id string) error {
	err := cs.db.Update(func(tx *buntdb.Tx) error {
		for _, field := range []string{"secret", "domain", "user-id"} {
			if _, err := tx.Delete(key(id, field)); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("problem deleting %s: %v", id, err)
	}
	return nil
}
