// Command secmem-vault is a minimal sealed secret store demonstrating
// the secmem containers end to end. Secrets are sealed under a
// passphrase-derived key and persisted in a bolt database; plaintext
// only ever lives inside guarded memory.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/term"

	"github.com/veilkit/secmem"
	"github.com/veilkit/secmem/memprot"
)

var (
	bucketSecrets = []byte("secrets")
	bucketMeta    = []byte("meta")
	keySalt       = []byte("salt")
)

// record is the stored form of one sealed secret.
type record struct {
	Name    string `cbor:"1,keyasint"`
	Sealed  []byte `cbor:"2,keyasint"`
	Created int64  `cbor:"3,keyasint"`
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	mode := os.Args[1]
	args := os.Args[2:]

	fs := flag.NewFlagSet(mode, flag.ExitOnError)
	dbPath := fs.String("db", defaultDBPath(), "path to the vault database")
	fs.Parse(args)

	var err error
	switch mode {
	case "set":
		err = runSet(*dbPath, fs.Args())
	case "get":
		err = runGet(*dbPath, fs.Args())
	case "list":
		err = runList(*dbPath)
	case "del":
		err = runDel(*dbPath, fs.Args())
	default:
		fmt.Fprintf(os.Stderr, "unknown mode: %s\n", mode)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: secmem-vault <mode> [options] [args]

Modes:
  set <name>    Store a secret under name (prompted)
  get <name>    Print a stored secret to stdout
  list          List stored secret names
  del <name>    Remove a stored secret

Run 'secmem-vault <mode> -h' for mode-specific options.
`)
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "vault.db"
	}
	return filepath.Join(home, ".secmem-vault.db")
}

func openDB(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open vault %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSecrets); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init vault: %w", err)
	}
	return db, nil
}

// promptPassphrase reads the vault passphrase into guarded memory.
func promptPassphrase() (*secmem.Buffer, error) {
	fmt.Fprint(os.Stderr, "passphrase: ")
	line, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	if len(line) == 0 {
		return nil, fmt.Errorf("empty passphrase")
	}
	return secmem.BufferFromBytes(line)
}

// vaultSalt loads the vault's KDF salt, creating it on first use.
func vaultSalt(db *bolt.DB) ([]byte, error) {
	var salt []byte
	err := db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if s := meta.Get(keySalt); s != nil {
			salt = append([]byte(nil), s...)
			return nil
		}
		f, err := secmem.NewFixedRandom(32)
		if err != nil {
			return err
		}
		defer f.Destroy()
		// The salt is not secret; it only has to be unique per vault.
		if err := f.Bytes(func(view []byte) {
			salt = append([]byte(nil), view...)
		}); err != nil {
			return err
		}
		return meta.Put(keySalt, salt)
	})
	if err != nil {
		return nil, fmt.Errorf("vault salt: %w", err)
	}
	return salt, nil
}

// deriveKey runs the passphrase through scrypt and keeps the result in
// a fixed guarded buffer.
func deriveKey(pass *secmem.Buffer, salt []byte) (*secmem.Fixed, error) {
	var key *secmem.Fixed
	var derr error
	err := pass.Bytes(func(view []byte) {
		raw, err := scrypt.Key(view, salt, 16384, 8, 1, 32)
		if err != nil {
			derr = err
			return
		}
		key, derr = secmem.FixedFromBytes(raw) // wipes raw
	})
	if err == nil {
		err = derr
	}
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// withSealKey extracts the derived key into the fixed-size array the
// cipher wants, runs f, and wipes the array again.
func withSealKey(key *secmem.Fixed, f func(k *[32]byte) error) error {
	var k [32]byte
	err := key.Bytes(func(view []byte) {
		copy(k[:], view)
	})
	if err != nil {
		return err
	}
	defer memprot.Wipe(k[:])
	return f(&k)
}

func unlockVault(db *bolt.DB) (*secmem.Fixed, error) {
	pass, err := promptPassphrase()
	if err != nil {
		return nil, err
	}
	defer pass.Destroy()

	salt, err := vaultSalt(db)
	if err != nil {
		return nil, err
	}
	return deriveKey(pass, salt)
}

func runSet(dbPath string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("set: exactly one secret name required")
	}
	name := args[0]

	db, err := openDB(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	key, err := unlockVault(db)
	if err != nil {
		return err
	}
	defer key.Destroy()

	fmt.Fprintf(os.Stderr, "secret for %q: ", name)
	line, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read secret: %w", err)
	}
	secret, err := secmem.BufferFromBytes(line)
	if err != nil {
		return err
	}
	defer secret.Destroy()

	var sealed []byte
	var serr error
	err = withSealKey(key, func(k *[32]byte) error {
		return secret.Bytes(func(view []byte) {
			sealed, serr = sealValue(k, view)
		})
	})
	if err == nil {
		err = serr
	}
	if err != nil {
		return fmt.Errorf("seal %s: %w", name, err)
	}

	rec := record{Name: name, Sealed: sealed, Created: time.Now().Unix()}
	enc, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSecrets).Put([]byte(name), enc)
	})
	if err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}
	log.Printf("stored %q (%d sealed bytes)", name, len(sealed))
	return nil
}

func runGet(dbPath string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("get: exactly one secret name required")
	}
	name := args[0]

	db, err := openDB(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	var enc []byte
	err = db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketSecrets).Get([]byte(name)); v != nil {
			enc = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if enc == nil {
		return fmt.Errorf("no secret named %q", name)
	}
	var rec record
	if err := cbor.Unmarshal(enc, &rec); err != nil {
		return fmt.Errorf("decode record %s: %w", name, err)
	}

	key, err := unlockVault(db)
	if err != nil {
		return err
	}
	defer key.Destroy()

	var secret *secmem.Buffer
	err = withSealKey(key, func(k *[32]byte) error {
		plain, err := openValue(k, rec.Sealed)
		if err != nil {
			return err
		}
		secret, err = secmem.BufferFromBytes(plain) // wipes plain
		return err
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer secret.Destroy()

	return secret.Bytes(func(view []byte) {
		os.Stdout.Write(view)
		fmt.Println()
	})
}

func runList(dbPath string) error {
	db, err := openDB(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSecrets).ForEach(func(k, v []byte) error {
			var rec record
			if err := cbor.Unmarshal(v, &rec); err != nil {
				return err
			}
			fmt.Printf("%s\t%s\n", rec.Name, time.Unix(rec.Created, 0).Format(time.DateOnly))
			return nil
		})
	})
}

func runDel(dbPath string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("del: exactly one secret name required")
	}
	name := args[0]

	db, err := openDB(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSecrets).Delete([]byte(name))
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	log.Printf("deleted %q", name)
	return nil
}
