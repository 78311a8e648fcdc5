package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	grpcserver "github.com/and161185/garage-keeper/internal/server/grpc"
)

var errUsage = errors.New("usage")

// run executes a remote command and returns the server response.
func run(ctx context.Context, cl *grpcserver.Client, cmd string, args []string) (*structpb.Struct, error) {
	switch cmd {
	case "sweep":
		fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
		secret := fs.String("secret", os.Getenv("GK_CRON_SECRET"), "cron shared secret")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if *secret == "" {
			return nil, errors.New("need -secret or GK_CRON_SECRET")
		}
		ctx = metadata.AppendToOutgoingContext(ctx, grpcserver.CronSecretHeader, *secret)
		return cl.Call(ctx, grpcserver.MethodSweep, nil)

	case "vehicle":
		method, req, err := vehicleRequest(args)
		if err != nil {
			return nil, err
		}
		return cl.Call(ctx, method, req)

	case "event":
		method, req, err := eventRequest(args)
		if err != nil {
			return nil, err
		}
		return cl.Call(ctx, method, req)

	case "notifications":
		fs := flag.NewFlagSet("notifications", flag.ContinueOnError)
		limit := fs.Int("limit", 0, "max records (server default when 0)")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		var req *structpb.Struct
		if *limit > 0 {
			var err error
			if req, err = structpb.NewStruct(map[string]any{"limit": *limit}); err != nil {
				return nil, err
			}
		}
		return cl.Call(ctx, grpcserver.MethodListNotifications, req)
	}
	return nil, errUsage
}

func idFlag(fs *flag.FlagSet) *int64 { return fs.Int64("id", 0, "id") }

func needID(id int64) (map[string]any, error) {
	if id <= 0 {
		return nil, errors.New("need -id")
	}
	return map[string]any{"id": id}, nil
}

// vehicleRequest maps "vehicle <sub> [flags]" to a method and request.
func vehicleRequest(args []string) (string, *structpb.Struct, error) {
	if len(args) < 1 {
		return "", nil, errUsage
	}
	sub, rest := args[0], args[1:]
	fs := flag.NewFlagSet("vehicle "+sub, flag.ContinueOnError)

	var (
		method string
		m      map[string]any
		err    error
	)
	switch sub {
	case "add":
		reg := fs.String("reg", "", "registration")
		mk := fs.String("make", "", "make")
		model := fs.String("model", "", "model")
		colour := fs.String("colour", "", "colour")
		mot := fs.String("mot", "", "MOT expiry (YYYY-MM-DD)")
		tax := fs.String("tax", "", "tax due date (YYYY-MM-DD)")
		if err := fs.Parse(rest); err != nil {
			return "", nil, err
		}
		if *reg == "" {
			return "", nil, errors.New("need -reg")
		}
		method = grpcserver.MethodCreateVehicle
		m = map[string]any{"registration": *reg, "make": *mk, "model": *model, "colour": *colour}
		if *mot != "" {
			m["motExpiry"] = *mot
		}
		if *tax != "" {
			m["taxDueDate"] = *tax
		}

	case "list":
		return grpcserver.MethodListVehicles, nil, fs.Parse(rest)

	case "rm", "refresh", "reconcile":
		id := idFlag(fs)
		if err := fs.Parse(rest); err != nil {
			return "", nil, err
		}
		if m, err = needID(*id); err != nil {
			return "", nil, err
		}
		method = map[string]string{
			"rm":        grpcserver.MethodDeleteVehicle,
			"refresh":   grpcserver.MethodRefreshVehicle,
			"reconcile": grpcserver.MethodReconcileVehicle,
		}[sub]

	default:
		return "", nil, errUsage
	}

	req, err := structpb.NewStruct(m)
	return method, req, err
}

// parseReminders turns "60,1440" into popup overrides.
func parseReminders(s string) ([]any, error) {
	var out []any
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad reminder offset %q", part)
		}
		out = append(out, map[string]any{"method": "popup", "minutes": n})
	}
	return out, nil
}

func checkTime(name, v string) error {
	if _, err := time.Parse(time.RFC3339, v); err != nil {
		return fmt.Errorf("-%s: want RFC 3339, got %q", name, v)
	}
	return nil
}

// eventRequest maps "event <sub> [flags]" to a method and request.
func eventRequest(args []string) (string, *structpb.Struct, error) {
	if len(args) < 1 {
		return "", nil, errUsage
	}
	sub, rest := args[0], args[1:]
	fs := flag.NewFlagSet("event "+sub, flag.ContinueOnError)

	var (
		method string
		m      map[string]any
		err    error
	)
	switch sub {
	case "add":
		name := fs.String("name", "", "title")
		desc := fs.String("desc", "", "description")
		loc := fs.String("location", "", "location")
		start := fs.String("start", "", "start (RFC 3339)")
		end := fs.String("end", "", "end (RFC 3339)")
		asset := fs.Int64("asset", 0, "vehicle id")
		remind := fs.String("remind", "", "reminder offsets in minutes, comma separated")
		useDefault := fs.Bool("default", false, "use the default reminders")
		if err := fs.Parse(rest); err != nil {
			return "", nil, err
		}
		if *name == "" || *start == "" || *end == "" {
			return "", nil, errors.New("need -name -start -end")
		}
		for n, v := range map[string]string{"start": *start, "end": *end} {
			if err := checkTime(n, v); err != nil {
				return "", nil, err
			}
		}
		method = grpcserver.MethodCreateEvent
		m = map[string]any{"name": *name, "description": *desc, "location": *loc, "start": *start, "end": *end}
		if *asset > 0 {
			m["assetId"] = *asset
		}
		overrides, err := parseReminders(*remind)
		if err != nil {
			return "", nil, err
		}
		if len(overrides) > 0 || *useDefault {
			m["reminders"] = map[string]any{"useDefault": *useDefault, "overrides": overrides}
		}

	case "list":
		from := fs.String("from", "", "from (RFC 3339)")
		to := fs.String("to", "", "to (RFC 3339)")
		if err := fs.Parse(rest); err != nil {
			return "", nil, err
		}
		if *from == "" {
			*from = time.Now().UTC().Truncate(24 * time.Hour).Format(time.RFC3339)
		}
		if *to == "" {
			f, err := time.Parse(time.RFC3339, *from)
			if err != nil {
				return "", nil, checkTime("from", *from)
			}
			*to = f.AddDate(0, 1, 0).Format(time.RFC3339)
		}
		method = grpcserver.MethodListEvents
		m = map[string]any{"from": *from, "to": *to}

	case "edit":
		id := idFlag(fs)
		name := fs.String("name", "", "title")
		loc := fs.String("location", "", "location")
		start := fs.String("start", "", "start (RFC 3339)")
		end := fs.String("end", "", "end (RFC 3339)")
		remind := fs.String("remind", "", "reminder offsets in minutes, comma separated")
		clearRem := fs.Bool("clear-reminders", false, "remove all reminders")
		if err := fs.Parse(rest); err != nil {
			return "", nil, err
		}
		if m, err = needID(*id); err != nil {
			return "", nil, err
		}
		// only flags given on the command line are sent
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "name":
				m["name"] = *name
			case "location":
				m["location"] = *loc
			case "start":
				m["start"] = *start
			case "end":
				m["end"] = *end
			}
		})
		for _, k := range []string{"start", "end"} {
			if v, ok := m[k].(string); ok {
				if err := checkTime(k, v); err != nil {
					return "", nil, err
				}
			}
		}
		switch {
		case *clearRem:
			m["reminders"] = nil
		case *remind != "":
			overrides, err := parseReminders(*remind)
			if err != nil {
				return "", nil, err
			}
			m["reminders"] = map[string]any{"useDefault": false, "overrides": overrides}
		}
		method = grpcserver.MethodUpdateEvent

	case "rm":
		id := idFlag(fs)
		if err := fs.Parse(rest); err != nil {
			return "", nil, err
		}
		if m, err = needID(*id); err != nil {
			return "", nil, err
		}
		method = grpcserver.MethodDeleteEvent

	default:
		return "", nil, errUsage
	}

	req, err := structpb.NewStruct(m)
	return method, req, err
}

// cmdToken mints an HS256 access token for local development.
func cmdToken(args []string) (string, error) {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	key := fs.String("key", os.Getenv("GK_JWT_KEY"), "HS256 signing key")
	sub := fs.String("sub", "", "user id (uuid), random when empty")
	ttl := fs.Duration("ttl", time.Hour, "lifetime")
	save := fs.Bool("save", false, "store as the current token")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if *key == "" {
		return "", errors.New("need -key or GK_JWT_KEY")
	}
	if *sub == "" {
		*sub = uuid.Must(uuid.NewV4()).String()
	}
	if _, err := uuid.FromString(*sub); err != nil {
		return "", fmt.Errorf("-sub: %w", err)
	}

	now := time.Now().UTC()
	exp := now.Add(*ttl)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   *sub,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte(*key))
	if err != nil {
		return "", err
	}
	if *save {
		if err := saveToken(tok, exp); err != nil {
			return "", err
		}
	}
	return tok, nil
}
