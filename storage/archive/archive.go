// Package archive keeps immutable, content-addressed snapshots of the
// registry on local disk, plus an append-only journal of when each snapshot
// was taken.
//
// Objects are keyed strictly by CID and never rewritten. The archive is
// offline: it never uses the network.
package archive

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/authledger/cidutil"
	"xdao.co/authledger/storage"
)

// ErrImmutable is returned when an object already on disk does not match the
// bytes being archived under its CID.
var ErrImmutable = errors.New("archive: object is immutable")

const (
	objectsDir  = "objects"
	journalFile = "journal.log"
)

// Entry is one journal line.
type Entry struct {
	CID     string    `json:"cid"`
	Records int       `json:"records"`
	At      time.Time `json:"at"`
}

type Archive struct {
	root string
	mu   sync.Mutex
}

// New constructs an archive rooted at root. The directory will be created if needed.
func New(root string) (*Archive, error) {
	if root == "" {
		return nil, errors.New("archive: root directory is required")
	}
	if err := os.MkdirAll(filepath.Join(root, objectsDir), 0o755); err != nil {
		return nil, err
	}
	return &Archive{root: root}, nil
}

// Put stores snapshot under its CID and records it in the journal.
// Archiving identical bytes twice is not an error.
func (a *Archive) Put(snapshot []byte, records int, at time.Time) (cid.Cid, error) {
	id, err := cidutil.Sum(snapshot)
	if err != nil {
		return cid.Undef, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.writeObject(id, snapshot); err != nil {
		return cid.Undef, err
	}
	line, err := json.Marshal(Entry{CID: id.String(), Records: records, At: at.UTC()})
	if err != nil {
		return cid.Undef, err
	}
	f, err := os.OpenFile(filepath.Join(a.root, journalFile), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return cid.Undef, err
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return cid.Undef, err
	}
	if err := f.Sync(); err != nil {
		return cid.Undef, err
	}
	return id, f.Close()
}

func (a *Archive) writeObject(id cid.Cid, data []byte) error {
	path := a.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			existing, rerr := a.Get(id)
			if rerr != nil || !bytes.Equal(existing, data) {
				// An unreadable or altered object is never repaired in place.
				return ErrImmutable
			}
			return nil
		}
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

// Get returns the snapshot stored under id. A missing object is
// storage.ErrNotFound; bytes that no longer hash to id are storage.ErrCorrupt.
func (a *Archive) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, fmt.Errorf("archive: undefined CID")
	}
	b, err := os.ReadFile(a.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if !cidutil.Matches(id, b) {
		return nil, fmt.Errorf("%w: object %s does not match its CID", storage.ErrCorrupt, id)
	}
	return b, nil
}

func (a *Archive) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(a.pathFor(id))
	return err == nil
}

// History returns journal entries oldest first. A missing journal is empty.
func (a *Archive) History() ([]Entry, error) {
	f, err := os.Open(filepath.Join(a.root, journalFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	n := 0
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("%w: journal line %d: %v", storage.ErrCorrupt, n, err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Archive) pathFor(id cid.Cid) string {
	s := id.String()
	if len(s) < 2 {
		return filepath.Join(a.root, objectsDir, s)
	}
	return filepath.Join(a.root, objectsDir, s[len(s)-2:], s)
}
