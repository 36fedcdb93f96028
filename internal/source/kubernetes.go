package source

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/cache"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/fraser-isbester/cebridge/internal/metrics"
	"github.com/fraser-isbester/cebridge/pkg/types"
)

const (
	kubeResync = 10 * time.Minute
	// Events older than this are skipped on the initial list and on updates.
	kubeMaxAge = time.Hour
)

// KubeSource watches core/v1 Events and turns them into bridge events.
type KubeSource struct {
	client  kubernetes.Interface
	logger  *zap.Logger
	metrics *metrics.Metrics
	maxAge  time.Duration

	mu        sync.Mutex
	eventChan chan<- *types.Event
	cancel    context.CancelFunc
	stopped   bool
}

func NewKubeSource(client kubernetes.Interface, logger *zap.Logger, m *metrics.Metrics) *KubeSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KubeSource{
		client:  client,
		logger:  logger.With(zap.String("source", "kubernetes")),
		metrics: m,
		maxAge:  kubeMaxAge,
	}
}

// NewKubeSourceFromEnv builds a client from the in-cluster config, falling
// back to $KUBECONFIG or ~/.kube/config.
func NewKubeSourceFromEnv(logger *zap.Logger, m *metrics.Metrics) (*KubeSource, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		kubeconfigPath := os.Getenv("KUBECONFIG")
		if kubeconfigPath == "" {
			kubeconfigPath = os.ExpandEnv("$HOME/.kube/config")
		}
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return NewKubeSource(clientset, logger, m), nil
}

func (k *KubeSource) Name() string {
	return "kubernetes"
}

func (k *KubeSource) Start(ctx context.Context, eventChan chan<- *types.Event) error {
	ctx, cancel := context.WithCancel(ctx)

	k.mu.Lock()
	k.eventChan = eventChan
	k.cancel = cancel
	k.mu.Unlock()

	factory := informers.NewSharedInformerFactory(k.client, kubeResync)
	informer := factory.Core().V1().Events().Informer()

	_, err := informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj interface{}) {
			if event, ok := obj.(*corev1.Event); ok {
				k.handleEvent(event)
			}
		},
		UpdateFunc: func(_, newObj interface{}) {
			if event, ok := newObj.(*corev1.Event); ok {
				k.handleEvent(event)
			}
		},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to add event handler: %w", err)
	}

	go informer.Run(ctx.Done())

	if !cache.WaitForCacheSync(ctx.Done(), informer.HasSynced) {
		cancel()
		return fmt.Errorf("failed to sync cache")
	}

	k.logger.Info("Started Kubernetes event watcher")
	return nil
}

func (k *KubeSource) handleEvent(kev *corev1.Event) {
	if ts := kubeEventTime(kev); ts.IsZero() || time.Since(ts) >= k.maxAge {
		return
	}

	event, err := convertKubeEvent(kev)
	if err != nil {
		k.logger.Error("Failed to convert Kubernetes event",
			zap.String("uid", string(kev.UID)), zap.Error(err))
		k.metrics.ObserveReceived(k.Name(), metrics.OutcomeError)
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stopped {
		return
	}

	select {
	case k.eventChan <- &event:
		k.metrics.ObserveReceived(k.Name(), metrics.OutcomeSuccess)
	default:
		k.logger.Warn("Event channel full, dropping event", zap.String("id", event.ID))
		k.metrics.ObserveReceived(k.Name(), metrics.OutcomeDropped)
	}
}

// Stop halts the informer. No event is sent after Stop returns.
func (k *KubeSource) Stop() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stopped = true
	if k.cancel != nil {
		k.cancel()
	}
	return nil
}

func kubeEventTime(kev *corev1.Event) time.Time {
	switch {
	case !kev.LastTimestamp.IsZero():
		return kev.LastTimestamp.Time
	case !kev.EventTime.IsZero():
		return kev.EventTime.Time
	default:
		return kev.FirstTimestamp.Time
	}
}

// convertKubeEvent maps a core/v1 Event onto a bridge event. The raw object
// is carried as JSON data.
func convertKubeEvent(kev *corev1.Event) (types.Event, error) {
	obj := kev.InvolvedObject

	source := "kubernetes://unknown"
	if obj.Namespace != "" {
		source = fmt.Sprintf("kubernetes://unknown/%s", obj.Namespace)
	}

	id := string(kev.UID)
	if id == "" {
		id = fmt.Sprintf("%s/%s/%s", kev.Namespace, kev.Name, kev.ResourceVersion)
	}

	data, err := json.Marshal(kev)
	if err != nil {
		return types.Event{}, fmt.Errorf("failed to marshal event to JSON: %w", err)
	}

	event := types.Event{
		ID:              id,
		Source:          source,
		Type:            fmt.Sprintf("com.kubernetes.%s.%s", strings.ToLower(obj.Kind), strings.ToLower(kev.Reason)),
		SpecVersion:     types.DefaultSpecVersion,
		Subject:         fmt.Sprintf("%s/%s", obj.Kind, obj.Name),
		DataContentType: "application/json",
		Data:            data,
	}
	if ts := kubeEventTime(kev); !ts.IsZero() {
		event.Time = ts.UTC().Format(time.RFC3339Nano)
	}

	// "type" is a reserved attribute, so Normal/Warning travels as eventtype.
	extensions := []struct{ name, value string }{
		{"namespace", obj.Namespace},
		{"kind", obj.Kind},
		{"name", obj.Name},
		{"reason", kev.Reason},
		{"eventtype", kev.Type},
		{"component", kev.Source.Component},
	}
	for _, ext := range extensions {
		if ext.value == "" {
			continue
		}
		if event, err = event.SetExtension(ext.name, ext.value); err != nil {
			return types.Event{}, err
		}
	}
	return event, nil
}
