package relayer

import (
	"context"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/tradeagent/internal/shared/domain"
	sharedBus "github.com/davicafu/tradeagent/internal/shared/infra/platform/bus"
	"go.uber.org/zap"
)

// Config agrupa los parámetros del bucle de polling.
type Config struct {
	Interval   time.Duration // período entre pases (default 1s)
	RetryEvery time.Duration // cadencia del barrido de mensajes Failed
	BatchSize  int           // 0 = sin límite por pase
	StuckAfter time.Duration // Processing más viejo que esto vuelve a Pending
}

// Dispatcher es la tarea de fondo que convierte filas Pending del outbox en
// publicaciones al broker. Es el único actor que muta el estado de entrega.
type Dispatcher struct {
	repo       sharedDomain.OutboxRepository
	publisher  sharedBus.MessagePublisher
	policy     RetryPolicy
	interval   time.Duration
	retryEvery time.Duration
	batchSize  int
	stuckAfter time.Duration
	log        *zap.Logger
}

func NewDispatcher(
	repo sharedDomain.OutboxRepository,
	publisher sharedBus.MessagePublisher,
	policy RetryPolicy,
	cfg Config,
	log *zap.Logger,
) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Second
	}
	if cfg.RetryEvery <= 0 {
		cfg.RetryEvery = 30 * time.Second
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 5 * time.Minute
	}
	return &Dispatcher{
		repo:       repo,
		publisher:  publisher,
		policy:     policy,
		interval:   cfg.Interval,
		retryEvery: cfg.RetryEvery,
		batchSize:  cfg.BatchSize,
		stuckAfter: cfg.StuckAfter,
		log:        log,
	}
}

// Start inicia el bucle de polling y bloquea hasta que el contexto se cancele.
// La cancelación se observa al inicio de cada iteración y durante la espera;
// una publicación en vuelo termina (con éxito o error) antes de salir.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	retryTicker := time.NewTicker(d.retryEvery)
	defer retryTicker.Stop()

	d.log.Info("🚀 Outbox dispatcher iniciado",
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	for {
		select {
		case <-ctx.Done():
			d.log.Info("🛑 Outbox dispatcher detenido.")
			return
		case <-ticker.C:
			d.ProcessBatch(ctx)
		case <-retryTicker.C:
			d.SweepFailed(ctx)
		}
	}
}

// ProcessBatch ejecuta un pase: libera mensajes Processing huérfanos, lee los
// Pending más antiguos primero y los publica secuencialmente. Un fallo en un
// mensaje nunca bloquea al resto del lote; cada actualización de estado se
// persiste por fila.
func (d *Dispatcher) ProcessBatch(ctx context.Context) {
	released, err := d.repo.ReleaseStuckProcessing(ctx, d.stuckAfter)
	if err != nil {
		d.log.Warn("⚠️ Error al liberar mensajes en Processing", zap.Error(err))
	} else if released > 0 {
		d.log.Warn("♻️ Mensajes Processing huérfanos devueltos a Pending", zap.Int("count", released))
	}

	msgs, err := d.repo.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.log.Warn("⚠️ Error al obtener mensajes pendientes", zap.Error(err))
		return
	}
	if len(msgs) > 0 {
		d.log.Info(fmt.Sprintf("📬 %d mensajes encontrados para publicar", len(msgs)))
	}

	for _, msg := range msgs {
		if ctx.Err() != nil {
			return
		}
		d.publishAndMark(ctx, msg)
	}
}

func (d *Dispatcher) publishAndMark(ctx context.Context, msg sharedDomain.OutboxMessage) {
	// 1. Reclamar el mensaje: si otro dispatcher lo tomó, lo saltamos.
	claimed, err := d.repo.ClaimProcessing(ctx, msg.ID)
	if err != nil {
		d.log.Warn("⚠️ Error al reclamar mensaje", zap.String("message_id", msg.ID.String()), zap.Error(err))
		return
	}
	if !claimed {
		d.log.Debug("Mensaje ya reclamado por otro dispatcher", zap.String("message_id", msg.ID.String()))
		return
	}

	// 2. Publicar con el tag del mensaje como routing key.
	if err := d.publisher.Publish(ctx, []byte(msg.Payload), msg.Type); err != nil {
		// El fallo de un mensaje no aborta el pase: se marca y se sigue.
		if markErr := d.repo.MarkFailed(ctx, msg.ID, err.Error()); markErr != nil {
			d.log.Warn("⚠️ No se pudo marcar mensaje como Failed",
				zap.String("message_id", msg.ID.String()),
				zap.Error(markErr),
			)
		}
		d.log.Warn("⚠️ No se pudo publicar mensaje",
			zap.String("message_id", msg.ID.String()),
			zap.String("type", msg.Type),
			zap.Error(err),
		)
		return
	}

	// 3. Marcar como procesado. Si esto falla tras un publish exitoso, el
	// mensaje se volverá a publicar en el siguiente pase: at-least-once.
	if err := d.repo.MarkProcessed(ctx, msg.ID, time.Now().UTC()); err != nil {
		d.log.Warn("⚠️ No se pudo marcar mensaje como Processed",
			zap.String("message_id", msg.ID.String()),
			zap.Error(err),
		)
		return
	}

	d.log.Info("✅ Mensaje publicado y marcado",
		zap.String("message_id", msg.ID.String()),
		zap.String("type", msg.Type),
	)
}

// SweepFailed aplica la política de reintentos a los mensajes Failed:
// los devuelve a Pending o los retira a dead-letter.
func (d *Dispatcher) SweepFailed(ctx context.Context) {
	msgs, err := d.repo.FetchFailed(ctx, d.batchSize)
	if err != nil {
		d.log.Warn("⚠️ Error al obtener mensajes fallidos", zap.Error(err))
		return
	}

	for _, msg := range msgs {
		switch d.policy.Decide(msg) {
		case RetryNow:
			if err := d.repo.MarkPending(ctx, msg.ID); err != nil {
				d.log.Warn("⚠️ No se pudo reencolar mensaje fallido",
					zap.String("message_id", msg.ID.String()), zap.Error(err))
				continue
			}
			d.log.Info("🔁 Mensaje fallido devuelto a Pending",
				zap.String("message_id", msg.ID.String()),
				zap.Int("attempts", msg.Attempts),
			)
		case RetryDeadLetter:
			if err := d.repo.MarkDeadLettered(ctx, msg.ID); err != nil {
				d.log.Warn("⚠️ No se pudo retirar mensaje a dead-letter",
					zap.String("message_id", msg.ID.String()), zap.Error(err))
				continue
			}
			d.log.Error("☠️ Mensaje retirado a dead-letter",
				zap.String("message_id", msg.ID.String()),
				zap.Int("attempts", msg.Attempts),
			)
		case RetryLeave:
			// Política base: Failed queda para intervención manual.
		}
	}
}
