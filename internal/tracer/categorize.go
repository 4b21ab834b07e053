package tracer

// Syscall categories. The mapping below is fixed and total: every name falls
// into exactly one category, unknown names into CategoryOther. Tool-format
// drift (_nocancel suffixes and the like) is normalized by the parsers before
// names reach this table.
const (
	CategoryFile    = "file"
	CategoryNetwork = "network"
	CategoryMemory  = "memory"
	CategoryProcess = "process"
	CategoryEvent   = "event"
	CategoryTime    = "time"
	CategoryIPC     = "ipc"
	CategoryOther   = "other"
)

var syscallCategories = map[string]string{
	"open": CategoryFile, "read": CategoryFile, "write": CategoryFile,
	"close": CategoryFile, "stat": CategoryFile, "fstat": CategoryFile,
	"lstat": CategoryFile, "access": CategoryFile, "unlink": CategoryFile,
	"rename": CategoryFile, "mkdir": CategoryFile, "rmdir": CategoryFile,
	"readlink": CategoryFile, "fsync": CategoryFile, "ftruncate": CategoryFile,

	"socket": CategoryNetwork, "connect": CategoryNetwork, "accept": CategoryNetwork,
	"bind": CategoryNetwork, "listen": CategoryNetwork, "send": CategoryNetwork,
	"recv": CategoryNetwork, "sendto": CategoryNetwork, "recvfrom": CategoryNetwork,
	"shutdown": CategoryNetwork, "getpeername": CategoryNetwork, "getsockname": CategoryNetwork,

	"mmap": CategoryMemory, "munmap": CategoryMemory, "mprotect": CategoryMemory,
	"brk": CategoryMemory, "sbrk": CategoryMemory,

	"fork": CategoryProcess, "exec": CategoryProcess, "exit": CategoryProcess,
	"wait": CategoryProcess, "kill": CategoryProcess, "getpid": CategoryProcess,
	"getppid": CategoryProcess,

	"kevent": CategoryEvent, "select": CategoryEvent, "poll": CategoryEvent,
	"kqueue": CategoryEvent,

	"gettimeofday": CategoryTime, "clock_gettime": CategoryTime,

	"pipe": CategoryIPC, "dup": CategoryIPC, "dup2": CategoryIPC,
	"fcntl": CategoryIPC, "ioctl": CategoryIPC,
}

// Categorize maps a normalized syscall name to its category.
func Categorize(name string) string {
	if cat, ok := syscallCategories[name]; ok {
		return cat
	}
	return CategoryOther
}

// categoryNames lists syscalls belonging to a category, used to build
// focused dtrace probe sets. Order is not guaranteed.
func categoryNames(category string) []string {
	var names []string
	for name, cat := range syscallCategories {
		if cat == category {
			names = append(names, name)
		}
	}
	return names
}
