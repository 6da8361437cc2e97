// Package prof wraps [runtime/pprof] for the softmmc example commands.
//
// Profiling is compiled in only with the "profile" build tag:
//
//	go build -tags profile ./examples/sim-hal/multi-unit
//
// Without the tag every function is a no-op and [Enabled] is false, so the
// profiling hooks can stay in place.
//
// Commands usually bind the standard flags and defer the stop function:
//
//	var opts prof.Options
//	opts.Bind(flag.CommandLine)
//	flag.Parse()
//
//	stop, err := opts.Start()
//	if err != nil {
//	    return err
//	}
//	defer stop()
//
// [Write] and [WriteTo] take snapshots of the other profiles. [ProfileCPU]
// is rejected there with [ErrInvalidProfile]; it streams between [StartCPU]
// and [StopCPU] instead. Block and mutex profiles stay empty until
// [SetContentionRate] enables them.
package prof
