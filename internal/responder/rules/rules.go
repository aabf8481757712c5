// Package rules implements a deterministic keyword responder for a Turkish
// e-commerce help desk. It never calls the network and always answers.
package rules

import (
	"context"
	"hash/fnv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nadzzz/helpline/internal/message"
)

// Intent is one row of the keyword table. Keywords are lowercase and matched
// as substrings. When an intent has several answers one is chosen by hashing
// the normalised input, so the same question always gets the same answer.
type Intent struct {
	Name     string
	Keywords []string
	Answers  []string
}

// DefaultAnswer is used when no intent matches.
const DefaultAnswer = "Müşteri hizmetlerimiz size yardımcı olmak için burada. " +
	"Sipariş, kargo, iade ve ürün bilgileriyle ilgili sorularınızı yanıtlayabilirim."

// DefaultIntents is the built-in table, in match order.
var DefaultIntents = []Intent{
	{
		Name:     "order_status",
		Keywords: []string{"sipariş", "order", "nerede", "durum", "status", "takip"},
		Answers: []string{
			"Siparişiniz kargoya verilmiştir; 2-4 iş günü içinde teslim edilmesi beklenir. " +
				"Kargo takip numaranız SMS/e-posta ile iletilecektir.",
			"Siparişiniz hazırlanıyor; kısa süre içinde kargoya teslim edilecektir.",
			"Siparişiniz depodan çıkıp kargoya verilmiştir; 1-2 iş günü içinde adresinize teslim edilmesi beklenir.",
		},
	},
	{
		Name:     "returns",
		Keywords: []string{"iade", "return", "geri", "değişim", "exchange"},
		Answers: []string{
			"İade/Değişim işleminizi hesabınızdaki 'Siparişlerim' bölümünden başlatabilirsiniz. " +
				"İade süreci 14 gün içinde tamamlanır; ücret iadesi 3-5 iş günü içinde hesabınıza geçer.",
		},
	},
	{
		Name:     "product_stock",
		Keywords: []string{"ürün", "product", "stok", "stock", "var mı", "mevcut"},
		Answers: []string{
			"Güncel stok durumu ürün sayfasında yer alır. Stok dışı ürünler için bildirim oluşturabilirsiniz.",
		},
	},
	{
		Name:     "shipping",
		Keywords: []string{"kargo", "shipping", "teslimat", "delivery", "gönderi"},
		Answers: []string{
			"Kargo süremiz şehir içi 1-2, şehir dışı 2-4 iş günüdür. 150 TL üzeri siparişlerde kargo ücretsizdir.",
		},
	},
	{
		Name:     "pricing",
		Keywords: []string{"fiyat", "price", "indirim", "discount", "kampanya", "promosyon"},
		Answers: []string{
			"Güncel kampanyaları kampanyalar sayfasından takip edebilirsiniz. Yeni üyeler için ek indirimler bulunur.",
		},
	},
	{
		Name:     "payment",
		Keywords: []string{"ödeme", "payment", "kredi kartı", "card", "taksit"},
		Answers: []string{
			"Kredi/banka kartı, havale/EFT ve kapıda ödeme desteklenir. Uygun kartlara taksit seçenekleri mevcuttur.",
		},
	},
	{
		Name:     "contact",
		Keywords: []string{"müşteri hizmetleri", "customer service", "iletişim", "telefon"},
		Answers: []string{
			"Müşteri hizmetlerine 444 0 123 üzerinden ulaşabilir veya canlı destekten yazabilirsiniz.",
		},
	},
	{
		Name:     "account",
		Keywords: []string{"hesap", "account", "üyelik", "membership", "şifre", "password"},
		Answers: []string{
			"Hesap işlemleri için 'Hesabım' bölümünü kullanın. Şifre sıfırlama için 'Şifremi Unuttum' bağlantısını tıklayın.",
		},
	},
	{
		Name:     "help",
		Keywords: []string{"yardım", "help", "destek", "support", "problem", "sorun"},
		Answers: []string{
			"Size nasıl yardımcı olabiliriz? Teknik destek, sipariş takibi ve ürün bilgileri konularında yardımcı olabiliriz.",
		},
	},
}

// Responder matches input against an intent table.
type Responder struct {
	intents  []Intent
	fallback string
}

// New creates a responder over DefaultIntents.
func New() *Responder {
	return NewWithTable(DefaultIntents, DefaultAnswer)
}

// NewWithTable creates a responder over a custom table.
func NewWithTable(intents []Intent, fallback string) *Responder {
	return &Responder{intents: intents, fallback: fallback}
}

// Name returns the provider identifier.
func (r *Responder) Name() string { return "rules" }

// Respond returns the canned answer for the first matching intent.
func (r *Responder) Respond(_ context.Context, text string, _ []message.Turn) (string, error) {
	_, answer := r.Match(text)
	return answer, nil
}

// Match returns the matched intent name ("default" when none) and its answer.
func (r *Responder) Match(text string) (string, string) {
	forms := normalize(text)
	for _, in := range r.intents {
		if len(in.Answers) == 0 {
			continue
		}
		if !containsAny(forms, in.Keywords) {
			continue
		}
		return in.Name, pick(in.Answers, forms[0])
	}
	return "default", r.fallback
}

// normalize lowercases text with Turkish rules ("İ"->"i", "I"->"ı") and with
// root rules, so both "SİPARİŞ" and "ORDER ID" match their keywords.
// Casers are stateful, so fresh ones are built per call.
func normalize(text string) []string {
	tr := cases.Lower(language.Turkish).String(text)
	root := cases.Lower(language.Und).String(text)
	if tr == root {
		return []string{tr}
	}
	return []string{tr, root}
}

func containsAny(forms []string, keywords []string) bool {
	for _, f := range forms {
		for _, k := range keywords {
			if strings.Contains(f, k) {
				return true
			}
		}
	}
	return false
}

func pick(answers []string, key string) string {
	if len(answers) == 1 {
		return answers[0]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return answers[h.Sum32()%uint32(len(answers))]
}
