// Command simactl is the control-socket client for sima: start, stop,
// restart, status, poweroff, reboot, and soft-reboot.
package main

import (
	"fmt"
	"os"

	"github.com/canonical/go-flags"

	"sima/client"
	"sima/internal/wire"
)

var (
	// Stdout and Stderr are redirected in tests.
	Stdout = os.Stdout
	Stderr = os.Stderr
)

type options struct {
	SocketPath string `long:"socket" description:"Path to the control socket" default:"/run/sima.sock"`
}

var opts options

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("start", "Start a service", "Start the named service; a no-op if already running.", &startCmd{})
	parser.AddCommand("stop", "Stop a service", "Signal the named service's process group to stop.", &stopCmd{})
	parser.AddCommand("restart", "Restart a service", "Stop the named service and start it again once it exits.", &restartCmd{})
	parser.AddCommand("status", "Show service status", "Report every configured service's name, pid, and running state.", &statusCmd{})
	parser.AddCommand("poweroff", "Power off the system", "Stop every service and power off the machine.", &poweroffCmd{})
	parser.AddCommand("reboot", "Reboot the system", "Stop every service and reboot the machine.", &rebootCmd{})
	parser.AddCommand("soft-reboot", "Re-exec the supervisor", "Stop every service and replace the supervisor's own process image.", &softRebootCmd{})

	if _, err := parser.Parse(); err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(Stderr, err)
		os.Exit(1)
	}
}

func newClient() *client.Client {
	return client.New(opts.SocketPath)
}

// report interprets resp, printing a status table if present, and
// returns a non-nil error when the exit code should be non-zero: on a
// transport failure or an Error response.
func report(resp wire.Response, err error) error {
	if err != nil {
		return err
	}
	switch resp.Kind {
	case wire.RespOk:
		return nil
	case wire.RespError:
		return fmt.Errorf("%s", resp.Error)
	case wire.RespStatusReport:
		printStatus(resp.Services)
		return nil
	default:
		return fmt.Errorf("unexpected response kind %v", resp.Kind)
	}
}

func printStatus(services []wire.ServiceInfo) {
	for _, s := range services {
		state := "stopped"
		pid := "-"
		if s.Running {
			state = "running"
			pid = fmt.Sprintf("%d", s.PID)
		}
		fmt.Fprintf(Stdout, "%-20s %-8s %s\n", s.Name, state, pid)
	}
}

type serviceNameArg struct {
	Positional struct {
		Name string `positional-arg-name:"<service>" required:"1"`
	} `positional-args:"yes"`
}

type startCmd struct{ serviceNameArg }

func (c *startCmd) Execute(args []string) error {
	return report(newClient().Start(c.Positional.Name))
}

type stopCmd struct{ serviceNameArg }

func (c *stopCmd) Execute(args []string) error {
	return report(newClient().Stop(c.Positional.Name))
}

type restartCmd struct{ serviceNameArg }

func (c *restartCmd) Execute(args []string) error {
	return report(newClient().Restart(c.Positional.Name))
}

type statusCmd struct{}

func (c *statusCmd) Execute(args []string) error {
	return report(newClient().Status())
}

type poweroffCmd struct{}

func (c *poweroffCmd) Execute(args []string) error {
	return report(newClient().Poweroff())
}

type rebootCmd struct{}

func (c *rebootCmd) Execute(args []string) error {
	return report(newClient().Reboot())
}

type softRebootCmd struct{}

func (c *softRebootCmd) Execute(args []string) error {
	return report(newClient().SoftReboot())
}
