// internal/hostkey/verifier.go
//
// Trust-on-first-use decision engine for server host keys. Classifies every
// offered key against the store and drives the confirmation prompts; a
// rejection here aborts the handshake before authentication starts.

package hostkey

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/crypto/ssh"

	"sshBridge/internal/console"
	"sshBridge/internal/errors"
	"sshBridge/internal/models"
	"sshBridge/internal/prompt"
)

// Outcome classifies an offered server key.
type Outcome int

const (
	// OutcomeOK: the key matches a stored record exactly.
	OutcomeOK Outcome = iota
	// OutcomeNew: no record exists for this identity under any algorithm.
	OutcomeNew
	// OutcomeChanged: a record exists for this algorithm with different bytes.
	OutcomeChanged
	// OutcomeUnknownAlgorithm: records exist for other algorithms only.
	// Prompted the same way as OutcomeNew.
	OutcomeUnknownAlgorithm
)

var changedBanner = lipgloss.NewStyle().
	Border(lipgloss.ThickBorder()).
	BorderForeground(lipgloss.Color("196")).
	Bold(true).
	Padding(0, 1)

// Verifier decides whether an offered server key may be trusted.
type Verifier struct {
	store   Store
	prompts *prompt.Broker
	sink    *console.Sink
}

// NewVerifier wires the verifier to its store, prompt broker and output sink.
func NewVerifier(store Store, prompts *prompt.Broker, sink *console.Sink) *Verifier {
	return &Verifier{
		store:   store,
		prompts: prompts,
		sink:    sink,
	}
}

// Classify compares the offered key against the store without prompting or
// mutating anything.
func (v *Verifier) Classify(id models.HostIdentity, algorithm string, keyBytes []byte) (Outcome, error) {
	records, err := v.store.Lookup(id)
	if err != nil {
		return OutcomeNew, fmt.Errorf("host key lookup failed: %w", err)
	}

	if len(records) == 0 {
		return OutcomeNew, nil
	}

	sameAlgorithm := false
	for _, rec := range records {
		if rec.Algorithm != algorithm {
			continue
		}
		sameAlgorithm = true
		if bytes.Equal(rec.KeyBytes, keyBytes) {
			return OutcomeOK, nil
		}
	}
	if sameAlgorithm {
		return OutcomeChanged, nil
	}
	return OutcomeUnknownAlgorithm, nil
}

// Verify runs the full trust decision for one offered key: classify, emit
// diagnostics, prompt when needed and update the store on explicit
// affirmation. A nil return means the key is trusted; any error carries
// errors.TrustRejected and must abort the handshake.
func (v *Verifier) Verify(id models.HostIdentity, algorithm string, keyBytes []byte) error {
	outcome, err := v.Classify(id, algorithm, keyBytes)
	if err != nil {
		return errors.New(errors.TrustRejected, "host key verification failed", err)
	}

	algoName := algorithmLabel(algorithm)
	fingerprint := sha256Fingerprint(keyBytes)

	switch outcome {
	case OutcomeOK:
		v.sink.Linef("Verified host key: %s %s", algoName, fingerprint)
		return nil

	case OutcomeNew, OutcomeUnknownAlgorithm:
		v.sink.Linef("The authenticity of host '%s' can't be established.", id.Hostname)
		v.sink.Linef("Host %s key fingerprint: %s", algoName, fingerprint)
		v.sink.Linef("Host %s key fingerprint (MD5): %s", algoName, md5Fingerprint(keyBytes))

		ok, answered := v.prompts.RequestBoolean("", "Are you sure you want to continue connecting?")
		if !answered || !ok {
			return errors.Newf(errors.TrustRejected, "host key for %s was not accepted", id)
		}
		if err := v.store.Add(Record{Identity: id, Algorithm: algorithm, KeyBytes: keyBytes}); err != nil {
			return errors.New(errors.TrustRejected, "failed to store host key", err)
		}
		return nil

	case OutcomeChanged:
		banner := changedBanner.Render("WARNING: REMOTE HOST IDENTIFICATION HAS CHANGED!")
		for _, line := range strings.Split(banner, "\n") {
			v.sink.Linef("%s", line)
		}
		v.sink.Linef("Someone could be eavesdropping on you right now (man-in-the-middle attack)!")
		v.sink.Linef("It is also possible that the host key has just been changed.")
		v.sink.Linef("Offered %s key fingerprint: %s", algoName, fingerprint)
		v.sink.Linef("Offered %s key fingerprint (MD5): %s", algoName, md5Fingerprint(keyBytes))
		for _, rec := range v.storedForAlgorithm(id, algorithm) {
			v.sink.Linef("Stored %s key fingerprint: %s", algoName, sha256Fingerprint(rec.KeyBytes))
		}

		ok, answered := v.prompts.RequestBoolean("", "Are you sure you want to continue connecting?")
		if !answered || !ok {
			return errors.Newf(errors.TrustRejected, "changed host key for %s was not accepted", id)
		}
		if err := v.store.Add(Record{Identity: id, Algorithm: algorithm, KeyBytes: keyBytes}); err != nil {
			return errors.New(errors.TrustRejected, "failed to replace host key", err)
		}
		return nil

	default:
		return errors.Newf(errors.TrustRejected, "host key for %s could not be verified", id)
	}
}

func (v *Verifier) storedForAlgorithm(id models.HostIdentity, algorithm string) []Record {
	records, err := v.store.Lookup(id)
	if err != nil {
		return nil
	}
	var out []Record
	for _, rec := range records {
		if rec.Algorithm == algorithm {
			out = append(out, rec)
		}
	}
	return out
}

// KnownAlgorithms lists stored algorithms for the identity so the client can
// prefer host-key algorithms it can actually verify silently.
func (v *Verifier) KnownAlgorithms(id models.HostIdentity) []string {
	algos, err := v.store.KnownAlgorithms(id)
	if err != nil {
		return nil
	}
	return algos
}

// Remove deletes one stored record.
func (v *Verifier) Remove(id models.HostIdentity, algorithm string, keyBytes []byte) error {
	return v.store.Remove(id, algorithm, keyBytes)
}

// AddKnown stores a record outside the prompt flow. Used when the peer
// offers additional host keys during a handshake the user already approved.
func (v *Verifier) AddKnown(id models.HostIdentity, algorithm string, keyBytes []byte) error {
	return v.store.Add(Record{Identity: id, Algorithm: algorithm, KeyBytes: keyBytes})
}

// Callback adapts the verifier to ssh.ClientConfig.HostKeyCallback for a
// specific target identity.
func (v *Verifier) Callback(id models.HostIdentity) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		return v.Verify(id, key.Type(), key.Marshal())
	}
}

// algorithmLabel maps wire algorithm names to the short labels used in
// user-facing output.
func algorithmLabel(algorithm string) string {
	switch {
	case algorithm == ssh.KeyAlgoRSA:
		return "RSA"
	case algorithm == ssh.KeyAlgoDSA:
		return "DSA"
	case strings.HasPrefix(algorithm, "ecdsa-"):
		return "EC"
	case algorithm == ssh.KeyAlgoED25519:
		return "Ed25519"
	default:
		return algorithm
	}
}

// md5Fingerprint renders the legacy colon-separated hex digest.
func md5Fingerprint(keyBytes []byte) string {
	sum := md5.Sum(keyBytes)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}

// sha256Fingerprint renders a hex SHA-256 digest of the raw key bytes.
func sha256Fingerprint(keyBytes []byte) string {
	sum := sha256.Sum256(keyBytes)
	return hex.EncodeToString(sum[:])
}
