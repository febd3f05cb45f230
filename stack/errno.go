package stack

import "strconv"

// Errno is a status code as returned by the C stack.
type Errno int

const (
	ENOMEM    Errno = -1
	EINVAL    Errno = -2
	ETIMEDOUT Errno = -3
	EUSED     Errno = -4
	ENOTSUP   Errno = -5
	EBUSY     Errno = -6
	EALREADY  Errno = -7
	ERESET    Errno = -8
	ENOBUFS   Errno = -9
	ETX       Errno = -10
	EDRIVER   Errno = -11
	EAGAIN    Errno = -12
	EHMAC     Errno = -100
	EXTEA     Errno = -101
	ECRC32    Errno = -102
	ESFP      Errno = -103
)

var errnoText = map[Errno]string{
	ENOMEM:    "no memory",
	EINVAL:    "invalid argument",
	ETIMEDOUT: "timed out",
	EUSED:     "already in use",
	ENOTSUP:   "not supported",
	EBUSY:     "busy",
	EALREADY:  "already done",
	ERESET:    "reset",
	ENOBUFS:   "no buffers",
	ETX:       "transmit error",
	EDRIVER:   "driver error",
	EAGAIN:    "try again",
	EHMAC:     "hmac failed",
	EXTEA:     "xtea failed",
	ECRC32:    "crc32 failed",
	ESFP:      "sfp failed",
}

func (e Errno) Error() string {
	if s, ok := errnoText[e]; ok {
		return s
	}
	return "errno " + strconv.Itoa(int(e))
}
