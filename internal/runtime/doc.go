// Package runtime wires storage, config, and the replay engine for one data
// directory. It exposes Open/Close, a basic health check, session helpers,
// and constructors that build buffers and synchronizers from the config.
//
// Example:
//
//	cfg := config.Default()
//	cfg.Storage.DataDir = "./data"
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//
//	_, _ = rt.EnsureSession("drive-42")
//	l, _ := rt.OpenLog("drive-42")
//	_, _ = l.Append(ctx, tss)
//
//	reg := objects.New()
//	sync, _ := rt.LoadLogSynchronizer(ctx, "drive-42", reg, nil)
//	frame := sync.CurrentFrame(nil, "")
package runtime
