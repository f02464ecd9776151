package syscalls

// sysKill implements the narrow subset of kill(2) this single-host-thread
// runtime can honor: signaling pid 1 (self) or the one live fork child.
func sysKill(rt *Runtime, a [6]uint64) int64 {
	pid := int32(int64(int32(a[0])))
	if pid == 1 || pid == 0 {
		return 0
	}
	if rt.Fork.Active() {
		return 0
	}
	return -ESRCH
}

// sysTkill/sysTgkill only ever target the calling thread in practice
// (pthread_kill(self, SIGABRT) on assert failures); log and succeed so the
// guest's abort() path still calls exit_group right after.
func sysTkill(rt *Runtime, a [6]uint64) int64 {
	rt.Logger.Debug("tkill/tgkill", "tid", int32(a[0]))
	return 0
}
