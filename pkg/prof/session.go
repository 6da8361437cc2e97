package prof

import (
	"errors"
	"flag"

	"github.com/ardnew/softmmc/pkg"
)

// Options selects the profiles a command writes.
type Options struct {
	CPU  string // CPU profile path
	Heap string // heap snapshot path, written on stop
}

// Bind registers -cpuprofile and -memprofile on fs.
func (o *Options) Bind(fs *flag.FlagSet) {
	fs.StringVar(&o.CPU, "cpuprofile", "", "write a CPU profile to `file`")
	fs.StringVar(&o.Heap, "memprofile", "", "write a heap profile to `file` on exit")
}

// Start begins the selected profiles. The returned function stops them and
// writes the heap snapshot; it must be called once.
func (o *Options) Start() (stop func() error, err error) {
	if (o.CPU != "" || o.Heap != "") && !Enabled {
		pkg.LogWarn(pkg.ComponentProf, "profiling not compiled in, rebuild with -tags profile")
	}
	if o.CPU != "" {
		if err := StartCPU(o.CPU); err != nil {
			return nil, err
		}
	}
	return func() error {
		var errs []error
		if o.CPU != "" {
			StopCPU()
		}
		if o.Heap != "" {
			errs = append(errs, Write(ProfileHeap, o.Heap))
		}
		return errors.Join(errs...)
	}, nil
}
