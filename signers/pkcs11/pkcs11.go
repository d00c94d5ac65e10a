// Package pkcs11 provides a hardware token signer backed by a
// PKCS#11 module. The Signer satisfies the engine's signer capability
// (crypto.Signer plus Certificate) structurally, so this package has
// no dependency on the main module.
//
// NOTE: This package is provided on a "best-effort" basis. Token
// behavior varies between vendors; it follows the baseline PKCS#11
// v2.x profile but may not cover every module.
package pkcs11

import (
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"sync"

	p11 "github.com/miekg/pkcs11"
)

// Config selects the module, token and key to sign with.
type Config struct {
	// Module is the path to the PKCS#11 shared library.
	Module string

	// TokenLabel selects the token. Empty picks the first slot with a
	// token present.
	TokenLabel string

	// PIN logs the session in as CKU_USER. Empty skips the login,
	// which only works on tokens that allow signing without one.
	PIN string

	// KeyLabel selects the private key by CKA_LABEL. Empty picks the
	// first private key with the sign capability.
	KeyLabel string
}

// Session is an open, logged-in PKCS#11 session. A session must be
// closed after use; Close is idempotent so deferred and direct calls
// can coexist.
type Session struct {
	ctx    *p11.Ctx
	handle p11.SessionHandle
	cfg    Config

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Open loads the module, selects the token and opens a session.
func Open(cfg Config) (*Session, error) {
	if cfg.Module == "" {
		return nil, errors.New("pkcs11: module path is required")
	}
	ctx := p11.New(cfg.Module)
	if ctx == nil {
		return nil, fmt.Errorf("pkcs11: cannot load module %s", cfg.Module)
	}
	if err := ctx.Initialize(); err != nil {
		ctx.Destroy()
		return nil, fmt.Errorf("pkcs11: initialize: %w", err)
	}

	slot, err := findSlot(ctx, cfg.TokenLabel)
	if err != nil {
		_ = ctx.Finalize()
		ctx.Destroy()
		return nil, err
	}

	handle, err := ctx.OpenSession(slot, p11.CKF_SERIAL_SESSION)
	if err != nil {
		_ = ctx.Finalize()
		ctx.Destroy()
		return nil, fmt.Errorf("pkcs11: open session on slot %d: %w", slot, err)
	}

	if cfg.PIN != "" {
		err := ctx.Login(handle, p11.CKU_USER, cfg.PIN)
		if err != nil && !isAlreadyLoggedIn(err) {
			_ = ctx.CloseSession(handle)
			_ = ctx.Finalize()
			ctx.Destroy()
			return nil, fmt.Errorf("pkcs11: login: %w", err)
		}
	}

	return &Session{ctx: ctx, handle: handle, cfg: cfg}, nil
}

func isAlreadyLoggedIn(err error) bool {
	var e p11.Error
	return errors.As(err, &e) && e == p11.CKR_USER_ALREADY_LOGGED_IN
}

func findSlot(ctx *p11.Ctx, tokenLabel string) (uint, error) {
	slots, err := ctx.GetSlotList(true)
	if err != nil {
		return 0, fmt.Errorf("pkcs11: list slots: %w", err)
	}
	if len(slots) == 0 {
		return 0, errors.New("pkcs11: no token present")
	}
	if tokenLabel == "" {
		return slots[0], nil
	}
	for _, slot := range slots {
		info, err := ctx.GetTokenInfo(slot)
		if err != nil {
			continue
		}
		if strings.TrimRight(info.Label, " \x00") == tokenLabel {
			return slot, nil
		}
	}
	return 0, fmt.Errorf("pkcs11: no token labeled %q", tokenLabel)
}

// Close logs out and releases the session, the token and the module.
// The first call does the work, later calls return the same result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		_ = s.ctx.Logout(s.handle)
		if err := s.ctx.CloseSession(s.handle); err != nil {
			s.closeErr = err
		}
		if err := s.ctx.Finalize(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
		s.ctx.Destroy()
	})
	return s.closeErr
}

// Signer locates the configured private key and its certificate and
// returns a signer bound to this session.
func (s *Session) Signer() (*Signer, error) {
	keyTemplate := []*p11.Attribute{
		p11.NewAttribute(p11.CKA_CLASS, p11.CKO_PRIVATE_KEY),
		p11.NewAttribute(p11.CKA_SIGN, true),
	}
	if s.cfg.KeyLabel != "" {
		keyTemplate = append(keyTemplate, p11.NewAttribute(p11.CKA_LABEL, s.cfg.KeyLabel))
	}
	key, err := s.findObject(keyTemplate)
	if err != nil {
		return nil, fmt.Errorf("pkcs11: locate private key: %w", err)
	}

	cert, err := s.findCertificate(key)
	if err != nil {
		return nil, err
	}
	return &Signer{session: s, key: key, cert: cert}, nil
}

// findCertificate pairs the certificate with the key through CKA_ID
// when the token assigns one, falling back to the first certificate.
func (s *Session) findCertificate(key p11.ObjectHandle) (*x509.Certificate, error) {
	certTemplate := []*p11.Attribute{
		p11.NewAttribute(p11.CKA_CLASS, p11.CKO_CERTIFICATE),
	}
	if id := s.attributeValue(key, p11.CKA_ID); len(id) > 0 {
		certTemplate = append(certTemplate, p11.NewAttribute(p11.CKA_ID, id))
	}

	obj, err := s.findObject(certTemplate)
	if err != nil {
		return nil, fmt.Errorf("pkcs11: locate certificate: %w", err)
	}
	der := s.attributeValue(obj, p11.CKA_VALUE)
	if len(der) == 0 {
		return nil, errors.New("pkcs11: certificate object has no value")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("pkcs11: parse certificate: %w", err)
	}
	return cert, nil
}

func (s *Session) findObject(template []*p11.Attribute) (p11.ObjectHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ctx.FindObjectsInit(s.handle, template); err != nil {
		return 0, err
	}
	objects, _, err := s.ctx.FindObjects(s.handle, 1)
	if ferr := s.ctx.FindObjectsFinal(s.handle); err == nil {
		err = ferr
	}
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, errors.New("no matching object")
	}
	return objects[0], nil
}

func (s *Session) attributeValue(obj p11.ObjectHandle, typ uint) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	attrs, err := s.ctx.GetAttributeValue(s.handle, obj, []*p11.Attribute{
		p11.NewAttribute(typ, nil),
	})
	if err != nil || len(attrs) == 0 {
		return nil
	}
	return attrs[0].Value
}

// sign serializes one mechanism operation on the session. PKCS#11
// allows a single active operation per session.
func (s *Session) sign(mechanism uint, key p11.ObjectHandle, data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ctx.SignInit(s.handle, []*p11.Mechanism{p11.NewMechanism(mechanism, nil)}, key); err != nil {
		return nil, err
	}
	return s.ctx.Sign(s.handle, data)
}
