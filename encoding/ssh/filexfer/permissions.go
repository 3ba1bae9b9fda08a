package filexfer

import (
	"io/fs"
)

// File type bits of the permissions field, as POSIX defines them.
const (
	ModeType = 0xF000

	ModeNamedPipe = 0x1000
	ModeCharDev   = 0x2000
	ModeDir       = 0x4000
	ModeDevice    = 0x6000
	ModeRegular   = 0x8000
	ModeSymlink   = 0xA000
	ModeSocket    = 0xC000
)

// FileMode converts the permissions field into an fs.FileMode.
func (a *Attributes) FileMode() fs.FileMode {
	if a.Flags&AttrPermissions == 0 {
		return 0
	}

	mode := fs.FileMode(a.Permissions & 0777)

	switch a.Permissions & ModeType {
	case ModeNamedPipe:
		mode |= fs.ModeNamedPipe
	case ModeCharDev:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case ModeDir:
		mode |= fs.ModeDir
	case ModeDevice:
		mode |= fs.ModeDevice
	case ModeSymlink:
		mode |= fs.ModeSymlink
	case ModeSocket:
		mode |= fs.ModeSocket
	}

	if a.Permissions&0x800 != 0 {
		mode |= fs.ModeSetuid
	}
	if a.Permissions&0x400 != 0 {
		mode |= fs.ModeSetgid
	}
	if a.Permissions&0x200 != 0 {
		mode |= fs.ModeSticky
	}

	return mode
}
