package client

import "context"

// ExecResult is the outcome of a one-shot command.
type ExecResult struct {
	Output   string `json:"output"`
	Error    string `json:"error"`
	ExitCode int    `json:"exitCode"`
}

// ProcessOutput is a drained slice of a background process's output.
type ProcessOutput struct {
	Output    []string `json:"output"`
	IsRunning bool     `json:"isRunning"`
}

// Terminal describes a created or switched terminal session.
type Terminal struct {
	TerminalID    string   `json:"terminalId"`
	Name          string   `json:"name"`
	Shell         string   `json:"shell"`
	Cwd           string   `json:"cwd"`
	InitialOutput []string `json:"initialOutput"`
}

// TerminalOutput is settled or historical terminal output.
type TerminalOutput struct {
	Output     []string `json:"output"`
	LineCount  int      `json:"lineCount"`
	TotalLines int      `json:"totalLines"`
}

// Execute runs a command to completion on the server.
func (c *Client) Execute(ctx context.Context, command, cwd string) (*ExecResult, error) {
	params := map[string]any{"command": command}
	if cwd != "" {
		params["cwd"] = cwd
	}
	var res ExecResult
	if err := c.Call(ctx, "executeCommand", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// StartProcess starts a background process under the given key.
func (c *Client) StartProcess(ctx context.Context, key, command string) error {
	return c.Call(ctx, "startLongRunningCommand", map[string]any{
		"processId": key,
		"command":   command,
	}, nil)
}

// ProcessOutput drains buffered output from a background process.
func (c *Client) ProcessOutput(ctx context.Context, key string) (*ProcessOutput, error) {
	var res ProcessOutput
	if err := c.Call(ctx, "getProcessOutput", map[string]any{"processId": key}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// WriteProcess writes a line of input to a background process.
func (c *Client) WriteProcess(ctx context.Context, key, text string) error {
	return c.Call(ctx, "writeToProcess", map[string]any{
		"processId": key,
		"text":      text,
	}, nil)
}

// KillProcess terminates a background process and waits for it to die.
func (c *Client) KillProcess(ctx context.Context, key string) error {
	return c.Call(ctx, "killProcess", map[string]any{"processId": key}, nil)
}

// CreateTerminal starts a new terminal session.
func (c *Client) CreateTerminal(ctx context.Context, shell, name string) (*Terminal, error) {
	params := map[string]any{}
	if shell != "" {
		params["shell"] = shell
	}
	if name != "" {
		params["name"] = name
	}
	var res Terminal
	if err := c.Call(ctx, "createTerminalSession", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// WriteTerminal writes a line of input to a terminal session and returns
// the output it settles into. An empty terminalID targets the current
// session.
func (c *Client) WriteTerminal(ctx context.Context, terminalID, text string) (*TerminalOutput, error) {
	params := map[string]any{"text": text}
	if terminalID != "" {
		params["terminalId"] = terminalID
	}
	var res TerminalOutput
	if err := c.Call(ctx, "writeToTerminal", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ReadTerminal reads a window of a terminal session's history without
// consuming it.
func (c *Client) ReadTerminal(ctx context.Context, terminalID string, lineCount int) (*TerminalOutput, error) {
	params := map[string]any{"lineCount": lineCount}
	if terminalID != "" {
		params["terminalId"] = terminalID
	}
	var res TerminalOutput
	if err := c.Call(ctx, "readTerminalOutput", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CloseTerminal closes a terminal session.
func (c *Client) CloseTerminal(ctx context.Context, terminalID string) error {
	params := map[string]any{}
	if terminalID != "" {
		params["terminalId"] = terminalID
	}
	return c.Call(ctx, "closeTerminalSession", params, nil)
}
