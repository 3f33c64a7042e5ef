/*
 * MIT License
 *
 * Copyright (c) 2023 EASL and the vHive community
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-cmd/cmd"
	"github.com/sfreiberg/simplessh"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// CommandRunner executes a CLI command and returns its standard output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExitError is returned when the command ran but exited with a non-zero status.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d: %s", e.Command, e.Code, e.Stderr)
}

type localRunner struct{}

func NewLocalRunner() CommandRunner {
	return localRunner{}
}

func (localRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	command := cmd.NewCmd(name, args...)
	statusChannel := command.Start()

	select {
	case status := <-statusChannel:
		stdout := strings.Join(status.Stdout, "\n")
		if status.Error != nil {
			return stdout, status.Error
		}
		if status.Exit != 0 {
			return stdout, &ExitError{Command: name, Code: status.Exit, Stderr: strings.Join(status.Stderr, " ")}
		}

		return stdout, nil
	case <-ctx.Done():
		if err := command.Stop(); err != nil {
			log.Warnf("Failed to stop %s - %v", name, err)
		}

		return "", ctx.Err()
	}
}

// sshRunner runs commands on a remote host, e.g. the OpenWhisk controller, over one shared SSH connection.
type sshRunner struct {
	host     string
	username string

	mutex  sync.Mutex
	client *simplessh.Client
}

func NewSSHRunner(host string, username string) CommandRunner {
	return &sshRunner{host: host, username: username}
}

func (r *sshRunner) connect() (*simplessh.Client, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.client != nil {
		return r.client, nil
	}

	client, err := simplessh.ConnectWithAgent(r.host, r.username)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s@%s: %w", r.username, r.host, err)
	}

	log.Infof("Connected to %s for remote command execution", r.host)
	r.client = client

	return client, nil
}

func (r *sshRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	client, err := r.connect()
	if err != nil {
		return "", err
	}

	type execution struct {
		output []byte
		err    error
	}
	done := make(chan execution, 1)

	go func() {
		output, err := client.Exec(shellJoin(name, args))
		done <- execution{output: output, err: err}
	}()

	select {
	case e := <-done:
		output := strings.TrimSpace(string(e.output))

		var exitErr *ssh.ExitError
		if errors.As(e.err, &exitErr) {
			// simplessh combines stdout and stderr
			return "", &ExitError{Command: name, Code: exitErr.ExitStatus(), Stderr: output}
		}

		return output, e.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *sshRunner) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil

	return err
}

// shellJoin quotes every argument for a POSIX shell.
func shellJoin(name string, args []string) string {
	quoted := make([]string, 0, len(args)+1)
	quoted = append(quoted, name)

	for _, arg := range args {
		quoted = append(quoted, "'"+strings.ReplaceAll(arg, "'", `'\''`)+"'")
	}

	return strings.Join(quoted, " ")
}
