package cache

import "fmt"

// Cache key grammar. Case-sensitive; every key in the subsystem is built
// through one of these helpers so the grammar lives in exactly one place.
const (
	keyUserModeGroup    = "user:%s:mode:%s:%s"
	keyUserCrossMode    = "user:%s:%s"
	keyUserSafety       = "user:%s:safety:%s"
	keyUserSequence     = "user:%s:sequence:%s"
	keyAdminModeGroup   = "admin:defaults:mode:%s:%s"
	keyAdminGlobal      = "admin:defaults:global:%s"
	keyAdminSafety      = "admin:defaults:safety:%s"
	keyAdminDefaultHash = "admin:defaults:hash"
)

// UserModeGroupKey returns the key for one setting group of one user mode.
func UserModeGroupKey(userID, mode, group string) string {
	return fmt.Sprintf(keyUserModeGroup, userID, mode, group)
}

// UserCrossModeKey returns the key for a user's cross-mode setting.
func UserCrossModeKey(userID, setting string) string {
	return fmt.Sprintf(keyUserCrossMode, userID, setting)
}

// UserSafetyKey returns the key for a user's per-mode safety settings.
func UserSafetyKey(userID, mode string) string {
	return fmt.Sprintf(keyUserSafety, userID, mode)
}

// UserSequenceKey returns the key for a user's daily sequence counter.
// dateKey is YYYYMMDD.
func UserSequenceKey(userID, dateKey string) string {
	return fmt.Sprintf(keyUserSequence, userID, dateKey)
}

// AdminModeGroupKey returns the admin-defaults mirror of a mode group key.
func AdminModeGroupKey(mode, group string) string {
	return fmt.Sprintf(keyAdminModeGroup, mode, group)
}

// AdminGlobalKey returns the admin-defaults key for a cross-mode setting.
func AdminGlobalKey(setting string) string {
	return fmt.Sprintf(keyAdminGlobal, setting)
}

// AdminSafetyKey returns the admin-defaults key for per-mode safety settings.
func AdminSafetyKey(mode string) string {
	return fmt.Sprintf(keyAdminSafety, mode)
}

// AdminDefaultsHashKey returns the key holding the defaults fingerprint.
func AdminDefaultsHashKey() string {
	return keyAdminDefaultHash
}

// UserModePattern matches every group key of one user mode.
func UserModePattern(userID, mode string) string {
	return fmt.Sprintf("user:%s:mode:%s:*", userID, mode)
}

// UserAllModesPattern matches every mode group key of one user.
func UserAllModesPattern(userID string) string {
	return fmt.Sprintf("user:%s:mode:*", userID)
}

// UserSafetyPattern matches every safety key of one user.
func UserSafetyPattern(userID string) string {
	return fmt.Sprintf("user:%s:safety:*", userID)
}

// AdminModePattern matches every admin-defaults mode group key.
func AdminModePattern() string {
	return "admin:defaults:mode:*"
}
