package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudfs/cloudsh/internal/core"
	"github.com/cloudfs/cloudsh/internal/model"
	"github.com/cloudfs/cloudsh/internal/util"
)

// command is one entry of the flat dispatch table.
type command struct {
	usage []string
	run   func(ctx context.Context, sh *Shell, args []string) error
}

// commandTable returns the commands keyed by name, aliases included, and
// the primary names in help order.
func commandTable() (map[string]*command, []string) {
	quit := &command{usage: []string{"quit"}, run: runQuit}
	help := &command{usage: []string{"help"}, run: runHelp}

	order := []string{
		"login", "logout", "locallogout", "session", "whoami", "reload",
		"mount", "ls", "cd", "pwd", "mkdir", "rm", "mv",
		"share", "users", "invite", "showpcr",
		"journal", "debug", "version", "help", "quit",
	}
	table := map[string]*command{
		"login":       {usage: []string{"login email [password]", "login session"}, run: runLogin},
		"logout":      {usage: []string{"logout"}, run: runLogout},
		"locallogout": {usage: []string{"locallogout"}, run: runLocalLogout},
		"session":     {usage: []string{"session"}, run: runSession},
		"whoami":      {usage: []string{"whoami"}, run: runWhoami},
		"reload":      {usage: []string{"reload"}, run: runReload},
		"mount":       {usage: []string{"mount"}, run: runMount},
		"ls":          {usage: []string{"ls [-R] [remotepath]"}, run: runLs},
		"cd":          {usage: []string{"cd [remotepath]"}, run: runCd},
		"pwd":         {usage: []string{"pwd"}, run: runPwd},
		"mkdir":       {usage: []string{"mkdir remotepath"}, run: runMkdir},
		"rm":          {usage: []string{"rm remotepath..."}, run: runRm},
		"mv":          {usage: []string{"mv srcremotepath dstremotepath"}, run: runMv},
		"share":       {usage: []string{"share [remotepath [dstemail [r|rw|full] [origemail]]]"}, run: runShare},
		"users":       {usage: []string{"users"}, run: runUsers},
		"invite":      {usage: []string{"invite dstemail [origemail|del|rmd]"}, run: runInvite},
		"showpcr":     {usage: []string{"showpcr"}, run: runShowPCR},
		"journal":     {usage: []string{"journal [count]"}, run: runJournal},
		"debug":       {usage: []string{"debug"}, run: runDebug},
		"version":     {usage: []string{"version"}, run: runVersion},
		"help":        help,
		"h":           help,
		"?":           help,
		"quit":        quit,
		"exit":        quit,
		"q":           quit,
	}
	return table, order
}

func usage(c string, lines ...string) error {
	return usageError(strings.Join(append([]string{c}, lines...), "\n      "))
}

func notLoggedIn(op string) error {
	return &core.OpError{Op: op, Err: core.ErrNotLoggedIn}
}

// --- session ---

func runLogin(ctx context.Context, sh *Shell, args []string) error {
	if sh.session.IsLoggedIn() {
		return errors.New("login: already logged in, log out first")
	}
	switch len(args) {
	case 1:
		if !strings.Contains(args[0], "@") {
			fmt.Fprintln(sh.out, "Resuming session...")
			return sh.session.FastLogin(ctx, args[0])
		}
		password, err := sh.readLine("Password: ")
		if err != nil {
			return fmt.Errorf("login: no password given: %w", err)
		}
		return sh.session.Login(ctx, args[0], password)
	case 2:
		return sh.session.Login(ctx, args[0], args[1])
	}
	return usage("login email [password]", "login session")
}

func runLogout(ctx context.Context, sh *Shell, _ []string) error {
	fmt.Fprintln(sh.out, "Logging off...")
	return sh.session.Logout(ctx)
}

func runLocalLogout(ctx context.Context, sh *Shell, _ []string) error {
	fmt.Fprintln(sh.out, "Logging off locally...")
	return sh.session.LocalLogout(ctx)
}

func runSession(_ context.Context, sh *Shell, _ []string) error {
	if tok := sh.session.Token(); tok != "" {
		fmt.Fprintf(sh.out, "Your (secret) session is: %s\n", tok)
		return nil
	}
	fmt.Fprintln(sh.out, "Not logged in.")
	return nil
}

func runWhoami(_ context.Context, sh *Shell, _ []string) error {
	if !sh.session.IsLoggedIn() {
		fmt.Fprintln(sh.out, "Not logged in.")
		return nil
	}
	fmt.Fprintf(sh.out, "Account e-mail: %s\n", sh.session.Store().MyEmail())
	return nil
}

func runReload(ctx context.Context, sh *Shell, _ []string) error {
	if !sh.session.IsLoggedIn() {
		return notLoggedIn("reload")
	}
	fmt.Fprintln(sh.out, "Reloading account...")
	return sh.session.FetchNodes(ctx)
}

// --- navigation and listing ---

func runMount(_ context.Context, sh *Shell, _ []string) error {
	if !sh.session.IsLoggedIn() {
		return notLoggedIn("mount")
	}
	core.ListMounts(sh.out, sh.session.Store())
	return nil
}

func runLs(_ context.Context, sh *Shell, args []string) error {
	if !sh.session.IsLoggedIn() {
		return notLoggedIn("ls")
	}
	recursive := len(args) > 0 && args[0] == "-R"
	if recursive {
		args = args[1:]
	}
	if len(args) > 1 {
		return usage("ls [-R] [remotepath]")
	}

	n := sh.session.CwdNode()
	path := "."
	if len(args) == 1 {
		path = args[0]
		res, err := sh.session.Resolve(path)
		if err != nil {
			return err
		}
		n = res.Node
	}
	if n == nil {
		return &core.OpError{Op: "ls", Path: path, Err: core.ErrNotFound}
	}
	core.List(sh.out, sh.session.Store(), n, recursive)
	return nil
}

func runCd(ctx context.Context, sh *Shell, args []string) error {
	switch len(args) {
	case 0:
		return sh.session.Cd(ctx, "")
	case 1:
		return sh.session.Cd(ctx, args[0])
	}
	return usage("cd [remotepath]")
}

func runPwd(_ context.Context, sh *Shell, _ []string) error {
	p, err := sh.session.Pwd()
	if err != nil {
		return err
	}
	fmt.Fprintln(sh.out, p)
	return nil
}

// --- mutations ---

func runMkdir(ctx context.Context, sh *Shell, args []string) error {
	if len(args) != 1 {
		return usage("mkdir remotepath")
	}
	_, err := sh.session.MakeDirectoryPath(ctx, args[0])
	return err
}

func runRm(ctx context.Context, sh *Shell, args []string) error {
	if len(args) == 0 {
		return usage("rm remotepath...")
	}
	res, err := sh.session.DeleteNodes(ctx, args)
	if err != nil {
		return err
	}
	for _, o := range res.Outcomes {
		if o.Err != nil {
			fmt.Fprintln(sh.errw, o.Err)
		}
	}
	if res.Failed > 0 {
		return fmt.Errorf("rm: %d of %d paths not removed", res.Failed, len(args))
	}
	return nil
}

func runMv(ctx context.Context, sh *Shell, args []string) error {
	if len(args) != 2 {
		return usage("mv srcremotepath dstremotepath")
	}
	res, err := sh.session.Move(ctx, args[0], args[1])
	if err != nil && res != nil && res.Moved {
		fmt.Fprintf(sh.errw, "%s was moved, but the operation did not complete\n", args[0])
	}
	return err
}

// --- sharing and contacts ---

func runShare(ctx context.Context, sh *Shell, args []string) error {
	if !sh.session.IsLoggedIn() {
		return notLoggedIn("share")
	}
	switch len(args) {
	case 0:
		fmt.Fprintln(sh.out, "Shared folders:")
		return sh.session.ListAllShares(sh.out)
	case 1:
		res, err := sh.session.Resolve(args[0])
		if err != nil {
			return err
		}
		if res.Node == nil {
			return &core.OpError{Op: "share", Path: args[0], Err: core.ErrNotFound}
		}
		core.ListShares(sh.out, sh.session.Store(), res.Node)
		return nil
	case 2:
		return sh.session.Share(ctx, args[0], args[1], model.AccessUnknown)
	case 3, 4:
		access, ok := model.ParseAccessLevel(args[2])
		if !ok {
			return errors.New("share: access level must be one of r, rw or full")
		}
		if len(args) == 4 {
			sh.logger.Debug().Str("origemail", args[3]).Msg("Ignoring personal representation")
		}
		return sh.session.Share(ctx, args[0], args[1], access)
	}
	return usage("share [remotepath [dstemail [r|rw|full] [origemail]]]")
}

func runUsers(_ context.Context, sh *Shell, _ []string) error {
	return sh.session.ListContacts(sh.out)
}

func runInvite(ctx context.Context, sh *Shell, args []string) error {
	switch len(args) {
	case 1:
		return sh.session.Invite(ctx, args[0], "Invite from cloudsh", model.ContactRequestAdd)
	case 2:
		switch args[1] {
		case "del":
			return sh.session.Invite(ctx, args[0], "", model.ContactRequestDelete)
		case "rmd":
			return sh.session.Invite(ctx, args[0], "", model.ContactRequestRemind)
		}
		return sh.session.Invite(ctx, args[0], "Invite from cloudsh", model.ContactRequestAdd)
	}
	return usage("invite dstemail [origemail|del|rmd]")
}

func runShowPCR(_ context.Context, sh *Shell, _ []string) error {
	return sh.session.ListContactRequests(sh.out)
}

// --- utilities ---

func runJournal(ctx context.Context, sh *Shell, args []string) error {
	limit := 20
	if len(args) > 1 {
		return usage("journal [count]")
	}
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return usage("journal [count]")
		}
		limit = n
	}

	entries, err := sh.engine.State.Journal().Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	if len(entries) == 0 {
		fmt.Fprintln(sh.out, "No journal entries.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(sh.out, "%-36s %-6s %-11s %s  %s\n",
			e.OperationID,
			e.OperationType,
			e.State,
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Payload)
		if e.Error != "" {
			fmt.Fprintf(sh.out, "    error: %s\n", e.Error)
		}
	}
	return nil
}

func runDebug(_ context.Context, sh *Shell, _ []string) error {
	sh.debug = !sh.debug
	if sh.debug {
		util.SetLevel(util.DebugLevel)
		fmt.Fprintln(sh.out, "Debug mode on")
	} else {
		util.SetLevel(sh.baseLevel)
		fmt.Fprintln(sh.out, "Debug mode off")
	}
	return nil
}

func runVersion(ctx context.Context, sh *Shell, _ []string) error {
	printVersion(sh.out)
	status, err := sh.engine.State.GetEncryptionStatus(ctx)
	if err != nil {
		return err
	}
	switch {
	case !status.IsEncrypted:
		fmt.Fprintf(sh.out, "State database: %s (unencrypted)\n", sh.engine.State.Path())
	case status.CipherVersion != "":
		fmt.Fprintf(sh.out, "State database: %s (SQLCipher %s)\n", sh.engine.State.Path(), status.CipherVersion)
	default:
		fmt.Fprintf(sh.out, "State database: %s (encrypted)\n", sh.engine.State.Path())
	}
	return nil
}

func runHelp(_ context.Context, sh *Shell, _ []string) error {
	for _, name := range sh.order {
		for _, line := range sh.commands[name].usage {
			fmt.Fprintf(sh.out, "      %s\n", line)
		}
	}
	return nil
}

func runQuit(context.Context, *Shell, []string) error {
	return ErrExit
}
