package command

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/autopeer-io/telehub/internal/telehub/core/model"
	"github.com/autopeer-io/telehub/pkg/log"
)

// HashPIN returns the bcrypt hash stored in RemoteControlConfig.PINHash.
func HashPIN(pin string) (string, error) {
	if pin == "" {
		return "", errors.New("empty PIN")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// verifyPIN checks pin against cfg. allowed gates the submission; verified
// is set only when the PIN matched an enrolled hash. A vehicle that requires
// a PIN but has no hash on record accepts any non-empty PIN without verifying
// it; that is logged so operators can enroll one.
func verifyPIN(vehicleID string, cfg *model.RemoteControlConfig, pin string) (allowed, verified bool) {
	if !cfg.RequirePIN {
		return true, false
	}
	if pin == "" {
		return false, false
	}
	if cfg.PINHash == "" {
		log.Warn("PIN required but no PIN hash enrolled, accepting presence only", "vehicleID", vehicleID)
		return true, false
	}
	ok := bcrypt.CompareHashAndPassword([]byte(cfg.PINHash), []byte(pin)) == nil
	return ok, ok
}
