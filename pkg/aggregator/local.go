package aggregator

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// cpuSampleWindow is how long LocalSample waits between /proc/stat reads
// to compute a CPU-busy percentage.
var cpuSampleWindow = 100 * time.Millisecond

// LocalSample reads CPU percent, memory percent, and 1-minute load average
// for this host. On non-Linux platforms (no /proc) it returns zeroed
// figures rather than failing the whole snapshot.
func LocalSample() (cpuPercent, memPercent, loadAvg1 float64, err error) {
	if runtime.GOOS != "linux" {
		return 0, 0, 0, nil
	}

	cpuPercent, err = readCPUPercent()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("read cpu percent: %w", err)
	}
	memPercent, err = readMemPercent()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("read memory percent: %w", err)
	}
	loadAvg1, err = readLoadAvg1()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("read load average: %w", err)
	}
	return cpuPercent, memPercent, loadAvg1, nil
}

func readCPUPercent() (float64, error) {
	before, err := readProcStatTotals("/proc/stat")
	if err != nil {
		return 0, err
	}
	time.Sleep(cpuSampleWindow)
	after, err := readProcStatTotals("/proc/stat")
	if err != nil {
		return 0, err
	}

	totalDelta := after.total - before.total
	idleDelta := after.idle - before.idle
	if totalDelta <= 0 {
		return 0, nil
	}
	busy := float64(totalDelta-idleDelta) / float64(totalDelta) * 100
	if busy < 0 {
		busy = 0
	}
	return busy, nil
}

type cpuTotals struct {
	total int64
	idle  int64
}

func readProcStatTotals(path string) (cpuTotals, error) {
	f, err := os.Open(path)
	if err != nil {
		return cpuTotals{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)[1:]
		var total int64
		var idle int64
		for i, f := range fields {
			v, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				continue
			}
			total += v
			if i == 3 { // idle field per /proc/stat column order
				idle = v
			}
		}
		return cpuTotals{total: total, idle: idle}, nil
	}
	return cpuTotals{}, fmt.Errorf("no cpu line in %s", path)
}

func readMemPercent() (float64, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var total, available float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		switch strings.TrimSuffix(fields[0], ":") {
		case "MemTotal":
			total, _ = strconv.ParseFloat(fields[1], 64)
		case "MemAvailable":
			available, _ = strconv.ParseFloat(fields[1], 64)
		}
	}
	if total == 0 {
		return 0, fmt.Errorf("could not read MemTotal")
	}
	used := total - available
	return used / total * 100, nil
}

func readLoadAvg1() (float64, error) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 1 {
		return 0, fmt.Errorf("malformed /proc/loadavg")
	}
	return strconv.ParseFloat(fields[0], 64)
}
