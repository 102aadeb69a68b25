package diskutil

import (
	"errors"

	"github.com/sigreer/vmcrypt/internal/executor"
	"github.com/sigreer/vmcrypt/internal/lsblk"
	"github.com/sigreer/vmcrypt/internal/registry"
)

// Sentinel errors callers can match with errors.Is
var (
	ErrToolExecution      = executor.ErrToolExecution
	ErrParse              = lsblk.ErrParse
	ErrRegistryCorruption = registry.ErrRegistryCorruption
	ErrNotFound           = errors.New("not found")
)
