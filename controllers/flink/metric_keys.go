package flink

// Default raw metric key sets the trackers poll. Callers may narrow or
// extend them per cluster.
var (
	DefaultJmMetricKeys = []string{
		"Status.JVM.Memory.Heap.Used",
		"Status.JVM.Memory.Heap.Max",
		"Status.JVM.CPU.Load",
		"Status.JVM.Threads.Count",
		"numRegisteredTaskManagers",
		"numRunningJobs",
		"taskSlotsAvailable",
		"taskSlotsTotal",
	}

	DefaultTmMetricKeys = []string{
		"Status.JVM.Memory.Heap.Used",
		"Status.JVM.Memory.Heap.Max",
		"Status.JVM.CPU.Load",
		"Status.JVM.Threads.Count",
		"Status.Flink.Memory.Managed.Used",
		"Status.Flink.Memory.Managed.Total",
	}

	DefaultJobMetricKeys = []string{
		"runningTime",
		"restartingTime",
		"numRestarts",
		"lastCheckpointDuration",
		"lastCheckpointSize",
	}
)
