package dispatch

import "os"

func pid() int { return os.Getpid() }
