package connect

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/nativeaudio/internal/app/callback"
	"github.com/osa030/nativeaudio/internal/app/facade"
	"github.com/osa030/nativeaudio/internal/app/session"
	"github.com/osa030/nativeaudio/internal/app/session/state"
	"github.com/osa030/nativeaudio/internal/domain/audio"
)

// ServiceName is the fully-qualified name of the audio service.
const ServiceName = "nativeaudio.v1.AudioService"

// Procedure paths of the audio service.
const (
	CreateProcedure             = "/" + ServiceName + "/Create"
	InitializeProcedure         = "/" + ServiceName + "/Initialize"
	ChangeAudioSourceProcedure  = "/" + ServiceName + "/ChangeAudioSource"
	ChangeMetadataProcedure     = "/" + ServiceName + "/ChangeMetadata"
	UpdateMetadataNowProcedure  = "/" + ServiceName + "/UpdateMetadataNow"
	GetDurationProcedure        = "/" + ServiceName + "/GetDuration"
	GetCurrentTimeProcedure     = "/" + ServiceName + "/GetCurrentTime"
	PlayProcedure               = "/" + ServiceName + "/Play"
	PauseProcedure              = "/" + ServiceName + "/Pause"
	SeekProcedure               = "/" + ServiceName + "/Seek"
	StopProcedure               = "/" + ServiceName + "/Stop"
	SetVolumeProcedure          = "/" + ServiceName + "/SetVolume"
	SetRateProcedure            = "/" + ServiceName + "/SetRate"
	IsPlayingProcedure          = "/" + ServiceName + "/IsPlaying"
	DestroyProcedure            = "/" + ServiceName + "/Destroy"
	RegisterCallbackProcedure   = "/" + ServiceName + "/RegisterCallback"
	ReportAppStateProcedure     = "/" + ServiceName + "/ReportAppState"
	TaskRemovedProcedure        = "/" + ServiceName + "/TaskRemoved"
	GetStatusProcedure          = "/" + ServiceName + "/GetStatus"
	SubscribeCallbacksProcedure = "/" + ServiceName + "/SubscribeCallbacks"
)

// AudioService implements the audio service RPCs over the command façade.
// Requests and responses are google.protobuf.Struct payloads with camelCase keys.
type AudioService struct {
	facade    *facade.Facade
	callbacks *callback.Table
	done      <-chan struct{}
	buffer    int
}

// NewAudioService creates a new AudioService. buffer is the number of callback
// events a subscriber may fall behind before events are dropped.
func NewAudioService(f *facade.Facade, c *session.Coordinator, buffer int) *AudioService {
	return &AudioService{
		facade:    f,
		callbacks: c.Callbacks(),
		done:      c.Done(),
		buffer:    buffer,
	}
}

type unaryFunc func(ctx context.Context, req *connect.Request[structpb.Struct]) (map[string]any, error)

// NewAudioServiceHandler builds an HTTP handler serving every procedure of the
// service and returns the path to mount it on.
func NewAudioServiceHandler(s *AudioService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	unary := func(procedure string, fn unaryFunc) {
		mux.Handle(procedure, connect.NewUnaryHandler(procedure, wrap(procedure, fn), opts...))
	}

	unary(CreateProcedure, bind(s.facade.Create))
	unary(InitializeProcedure, bind(s.facade.Initialize))
	unary(ChangeAudioSourceProcedure, bind(s.facade.ChangeAudioSource))
	unary(ChangeMetadataProcedure, bind(s.facade.ChangeMetadata))
	unary(UpdateMetadataNowProcedure, bind(s.facade.UpdateMetadataNow))
	unary(GetDurationProcedure, bindValue("duration", s.facade.GetDuration))
	unary(GetCurrentTimeProcedure, bindValue("currentTime", s.facade.GetCurrentTime))
	unary(PlayProcedure, bind(s.facade.Play))
	unary(PauseProcedure, bind(s.facade.Pause))
	unary(SeekProcedure, bind(s.facade.Seek))
	unary(StopProcedure, bind(s.facade.Stop))
	unary(SetVolumeProcedure, bind(s.facade.SetVolume))
	unary(SetRateProcedure, bind(s.facade.SetRate))
	unary(IsPlayingProcedure, bindValue("isPlaying", s.facade.IsPlaying))
	unary(DestroyProcedure, bind(s.facade.Destroy))
	unary(RegisterCallbackProcedure, s.registerCallback)
	unary(ReportAppStateProcedure, bind(s.facade.AppStateChanged))
	unary(TaskRemovedProcedure, s.taskRemoved)
	unary(GetStatusProcedure, s.getStatus)

	mux.Handle(SubscribeCallbacksProcedure, connect.NewServerStreamHandler(
		SubscribeCallbacksProcedure, s.SubscribeCallbacks, opts...,
	))
	return "/" + ServiceName + "/", mux
}

func wrap(procedure string, fn unaryFunc) func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return func(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
		out, err := fn(ctx, req)
		if err != nil {
			zlog.Debug().Msgf("rpc failed: procedure=%s error=%v", procedure, err)
			return nil, toConnectError(err)
		}
		if out == nil {
			out = map[string]any{}
		}
		msg, err := structpb.NewStruct(out)
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, errors.Wrap(err, "failed to encode response"))
		}
		return connect.NewResponse(msg), nil
	}
}

// decode copies a request payload into a façade parameter struct.
func decode(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "mapstructure",
		Result:  out,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := dec.Decode(in); err != nil {
		return errors.Mark(errors.Wrap(err, "invalid parameters"), audio.ErrInvalidArgument)
	}
	return nil
}

func bind[P any](fn func(context.Context, P) error) unaryFunc {
	return func(ctx context.Context, req *connect.Request[structpb.Struct]) (map[string]any, error) {
		var p P
		if err := decode(req.Msg.AsMap(), &p); err != nil {
			return nil, err
		}
		return nil, fn(ctx, p)
	}
}

func bindValue[P, V any](key string, fn func(context.Context, P) (V, error)) unaryFunc {
	return func(ctx context.Context, req *connect.Request[structpb.Struct]) (map[string]any, error) {
		var p P
		if err := decode(req.Msg.AsMap(), &p); err != nil {
			return nil, err
		}
		v, err := fn(ctx, p)
		if err != nil {
			return nil, err
		}
		return map[string]any{key: v}, nil
	}
}

// registerCallback takes the channel from the payload or the channel header.
func (s *AudioService) registerCallback(ctx context.Context, req *connect.Request[structpb.Struct]) (map[string]any, error) {
	var p facade.CallbackParams
	if err := decode(req.Msg.AsMap(), &p); err != nil {
		return nil, err
	}
	if p.ChannelID == "" {
		p.ChannelID = req.Header().Get(ChannelHeader)
	}
	id, err := s.facade.RegisterCallback(ctx, p)
	if err != nil {
		return nil, err
	}
	return map[string]any{"callbackId": id}, nil
}

func (s *AudioService) taskRemoved(ctx context.Context, _ *connect.Request[structpb.Struct]) (map[string]any, error) {
	return nil, s.facade.TaskRemoved(ctx)
}

func (s *AudioService) getStatus(context.Context, *connect.Request[structpb.Struct]) (map[string]any, error) {
	return statusMap(s.facade.Status()), nil
}

func statusMap(st state.Status) map[string]any {
	out := map[string]any{
		"hostId":         st.HostID,
		"phase":          st.Phase.String(),
		"notificationId": st.NotificationID,
		"sourceCount":    st.SourceCount,
	}
	if st.StartedAt != nil {
		out["startedAt"] = st.StartedAt.Format(time.RFC3339)
	}
	return out
}

// SubscribeCallbacks attaches a callback channel for the lifetime of the stream.
// The first message carries the channel ID used by RegisterCallback.
func (s *AudioService) SubscribeCallbacks(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
	stream *connect.ServerStream[structpb.Struct],
) error {
	sink := callback.NewChanSink(s.buffer)
	channelID := s.callbacks.Attach(sink)
	defer s.callbacks.Detach(channelID)

	stream.ResponseHeader().Set(ChannelHeader, channelID)
	first, err := structpb.NewStruct(map[string]any{
		"type":      "subscribed",
		"channelId": channelID,
	})
	if err != nil {
		return connect.NewError(connect.CodeInternal, err)
	}
	if err := stream.Send(first); err != nil {
		return err
	}
	zlog.Info().Msgf("callback channel subscribed: channel=%s", channelID)

	for {
		select {
		case <-ctx.Done():
			zlog.Info().Msgf("callback channel closed by client: channel=%s", channelID)
			return nil
		case <-s.done:
			return nil
		case e := <-sink.Events():
			msg, err := eventMessage(e)
			if err != nil {
				zlog.Warn().Msgf("failed to encode callback: kind=%s error=%v", e.Kind, err)
				continue
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func eventMessage(e callback.Event) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"type":       "callback",
		"callbackId": e.CallbackID,
		"kind":       e.Kind.String(),
		"audioId":    e.SourceID,
		"sequenceNo": float64(e.SequenceNo),
		"payload":    e.Payload,
	})
}
