// Package store implements tasque's durable, transactional store: the
// three relations of the data model (Task, Note, Config) backed by a
// single go.etcd.io/bbolt file, per §4.A.
//
// Every exported method opens exactly one bbolt transaction (View for
// reads, Update for writes) and returns; there is no long-lived
// transaction, so a crash of any actor — client, supervisor, or
// worker — at any point leaves the file in a consistent state. bbolt
// itself enforces single-writer access at the file level via an flock
// on Open, which is a stronger guarantee than the spec requires but
// never a weaker one.
//
// Nullability is handled by Go's own zero value: Task's optional
// fields are pointers, encoded as JSON null when absent and decoded
// back to nil on read. No field is ever the literal string "null"
// (P4) because no such sentinel exists in this representation.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cdluminate/tasque/pkg/errs"
	"github.com/cdluminate/tasque/pkg/task"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketTasks  = []byte("tasks")
	bucketNotes  = []byte("notes")
	bucketConfig = []byte("config")
	bucketMeta   = []byte("meta")

	keyNextTaskID = []byte("next_task_id")
	keyNextNoteID = []byte("next_note_id")

	configKeyResource = "resource"
	// DefaultResource is the plugin name used when a store is
	// created without TASQUE_RESOURCE set, per §6.
	DefaultResource = "void"
)

// Store is a durable, transactional handle on one tasque database
// file.
type Store struct {
	db   *bolt.DB
	path string
}

// Open opens (creating if absent) the store file at path, creates its
// schema, and seeds the config table's "resource" key from
// defaultResource the first time the file is created.
func Open(path string, defaultResource string) (*Store, error) {
	if err := EnsureDir(path); err != nil {
		return nil, errs.Store("creating store directory", err)
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errs.Store("opening store file", err)
	}

	s := &Store{db: db, path: path}

	created := false
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketTasks, bucketNotes, bucketConfig, bucketMeta} {
			existed := tx.Bucket(b) != nil
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
			if b2 := string(b); b2 == "config" && !existed {
				created = true
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errs.Store("creating store schema", err)
	}

	if created {
		if defaultResource == "" {
			defaultResource = DefaultResource
		}
		if err := s.SetConfig(configKeyResource, defaultResource); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Path returns the filesystem path of the open store.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func itob(v int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int {
	return int(binary.BigEndian.Uint64(b))
}

func nextID(tx *bolt.Tx, key []byte) int {
	meta := tx.Bucket(bucketMeta)
	cur := meta.Get(key)
	var id int
	if cur != nil {
		id = btoi(cur) + 1
	} else {
		id = 1
	}
	_ = meta.Put(key, itob(id))
	return id
}

// ---- Task operations ----

// InsertTask assigns the next task id and inserts a Waiting row,
// per §4.F enqueue.
func (s *Store) InsertTask(cwd, cmd string, pri int, rsc float64) (task.Task, error) {
	var t task.Task
	err := s.db.Update(func(tx *bolt.Tx) error {
		id := nextID(tx, keyNextTaskID)
		nt, err := task.New(id, cwd, cmd, pri, rsc)
		if err != nil {
			return err
		}
		t = nt
		return putTask(tx, t)
	})
	if err != nil {
		return task.Task{}, err
	}
	return t, nil
}

func putTask(tx *bolt.Tx, t task.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketTasks).Put(itob(t.ID), data)
}

// GetTask returns the task with the given id. ok is false if no such
// row exists.
func (s *Store) GetTask(id int) (t task.Task, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTasks).Get(itob(id))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &t)
	})
	if err != nil {
		return task.Task{}, false, errs.Store("reading task", err)
	}
	return t, ok, nil
}

// ListTasks returns every task row, in no particular order; callers
// needing priority/id ordering sort the result themselves (see
// pkg/supervisor).
func (s *Store) ListTasks() ([]task.Task, error) {
	var out []task.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTasks).ForEach(func(_, v []byte) error {
			var t task.Task
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			out = append(out, t)
			return nil
		})
	})
	if err != nil {
		return nil, errs.Store("listing tasks", err)
	}
	return out, nil
}

// UpdateTask overwrites the stored row for t.ID with t in full. Used
// by the worker and supervisor lifecycle transitions below, and
// exported for any caller that already has a full record to persist.
func (s *Store) UpdateTask(t task.Task) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketTasks).Get(itob(t.ID)) == nil {
			return fmt.Errorf("task %d does not exist", t.ID)
		}
		return putTask(tx, t)
	})
	if err != nil {
		return errs.Store("updating task", err)
	}
	return nil
}

// DeleteTask removes a task row unconditionally and cascades to its
// notes (I5). Most callers want DeleteTaskIfNotRunning instead.
func (s *Store) DeleteTask(id int) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketTasks).Delete(itob(id)); err != nil {
			return err
		}
		return deleteNotesForTaskLocked(tx, id)
	})
	if err != nil {
		return errs.Store("deleting task", err)
	}
	return nil
}

// DeleteTaskIfNotRunning implements dequeue(id): it deletes the row
// only if it is not Running (pid absent or pid < 0), and always
// cascades to its notes regardless of whether the row itself existed
// in a deletable state. deleted reports whether the task row was
// removed.
func (s *Store) DeleteTaskIfNotRunning(id int) (deleted bool, err error) {
	txErr := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data := b.Get(itob(id))
		if data == nil {
			return deleteNotesForTaskLocked(tx, id)
		}
		var t task.Task
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		if task.Stat(t) == task.Running {
			return deleteNotesForTaskLocked(tx, id)
		}
		if err := b.Delete(itob(id)); err != nil {
			return err
		}
		deleted = true
		return deleteNotesForTaskLocked(tx, id)
	})
	if txErr != nil {
		return false, errs.Store("dequeuing task", txErr)
	}
	return deleted, nil
}

// ClearDone deletes every Done row and its notes, per clear(). It
// returns the number of rows removed.
func (s *Store) ClearDone() (int, error) {
	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		var doneIDs []int
		err := b.ForEach(func(k, v []byte) error {
			var t task.Task
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			if task.Stat(t) == task.Done {
				doneIDs = append(doneIDs, t.ID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, id := range doneIDs {
			if err := b.Delete(itob(id)); err != nil {
				return err
			}
			if err := deleteNotesForTaskLocked(tx, id); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, errs.Store("clearing done tasks", err)
	}
	return removed, nil
}

// EditTask updates priority and/or resource weight of a Waiting row.
// ok is false if the row does not exist or is not Waiting.
func (s *Store) EditTask(id int, pri *int, rsc *float64) (ok bool, err error) {
	txErr := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data := b.Get(itob(id))
		if data == nil {
			return nil
		}
		var t task.Task
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		if task.Stat(t) != task.Waiting {
			return nil
		}
		if pri != nil {
			t.Pri = *pri
		}
		if rsc != nil {
			t.RSC = *rsc
		}
		ok = true
		return putTask(tx, t)
	})
	if txErr != nil {
		return false, errs.Store("editing task", txErr)
	}
	return ok, nil
}

// SetRunning records the worker-start transition: pid and stime are
// set (I3). Only valid coming from Waiting.
func (s *Store) SetRunning(id, pid int, stime float64) error {
	return s.mutateTask(id, func(t *task.Task) error {
		t.PID = task.IntPtr(pid)
		t.STime = task.Float64Ptr(stime)
		return nil
	})
}

// SetDone records the worker-completion transition: retval and etime
// are set, pid is cleared (I3).
func (s *Store) SetDone(id, retval int, etime float64) error {
	return s.mutateTask(id, func(t *task.Task) error {
		t.PID = nil
		t.Retval = task.IntPtr(retval)
		t.ETime = task.Float64Ptr(etime)
		return nil
	})
}

// SetAccident marks a task as lost: pid becomes -1, retval stays
// absent. Entered only by the reconcile pass.
func (s *Store) SetAccident(id int) error {
	return s.mutateTask(id, func(t *task.Task) error {
		t.PID = task.IntPtr(-1)
		return nil
	})
}

func (s *Store) mutateTask(id int, mutate func(*task.Task) error) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data := b.Get(itob(id))
		if data == nil {
			return fmt.Errorf("task %d does not exist", id)
		}
		var t task.Task
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		if err := mutate(&t); err != nil {
			return err
		}
		return putTask(tx, t)
	})
	if err != nil {
		return errs.Store("mutating task", err)
	}
	return nil
}

// ---- Note operations ----

// InsertNote assigns the next note id and inserts an annotation.
func (s *Store) InsertNote(id int, text string) (task.Note, error) {
	var n task.Note
	err := s.db.Update(func(tx *bolt.Tx) error {
		noteID := nextID(tx, keyNextNoteID)
		n = task.Note{NoteID: noteID, ID: id, Note: text}
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketNotes).Put(itob(noteID), data)
	})
	if err != nil {
		return task.Note{}, errs.Store("inserting note", err)
	}
	return n, nil
}

// DeleteNote removes one annotation by its noteid.
func (s *Store) DeleteNote(noteID int) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNotes).Delete(itob(noteID))
	})
	if err != nil {
		return errs.Store("deleting note", err)
	}
	return nil
}

// ListNotes returns every note row.
func (s *Store) ListNotes() ([]task.Note, error) {
	var out []task.Note
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNotes).ForEach(func(_, v []byte) error {
			var n task.Note
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			out = append(out, n)
			return nil
		})
	})
	if err != nil {
		return nil, errs.Store("listing notes", err)
	}
	return out, nil
}

func deleteNotesForTaskLocked(tx *bolt.Tx, id int) error {
	b := tx.Bucket(bucketNotes)
	var toDelete [][]byte
	err := b.ForEach(func(k, v []byte) error {
		var n task.Note
		if err := json.Unmarshal(v, &n); err != nil {
			return err
		}
		if n.ID == id {
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range toDelete {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// ---- Config operations ----

// GetConfig returns the value for key. ok is false if unset.
func (s *Store) GetConfig(key string) (value string, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketConfig).Get([]byte(key))
		if data == nil {
			return nil
		}
		ok = true
		value = string(data)
		return nil
	})
	if err != nil {
		return "", false, errs.Store("reading config", err)
	}
	return value, ok, nil
}

// SetConfig upserts a config key/value pair.
func (s *Store) SetConfig(key, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConfig).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return errs.Store("writing config", err)
	}
	return nil
}

// Resource returns the active resource plugin name, defaulting to
// DefaultResource if the config table has no "resource" key (which
// should not happen once Open has run, but a defensively-opened store
// from an older version might lack it).
func (s *Store) Resource() (string, error) {
	v, ok, err := s.GetConfig(configKeyResource)
	if err != nil {
		return "", err
	}
	if !ok {
		return DefaultResource, nil
	}
	return v, nil
}

// SetResource updates the active resource plugin name at rest.
func (s *Store) SetResource(name string) error {
	return s.SetConfig(configKeyResource, name)
}
