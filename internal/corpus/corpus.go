// Package corpus holds the adversarial values substituted into parameters.
package corpus

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"

	"github.com/PentesterFlow/slowscope/internal/schema"
)

// Corpus maps every kind to an ordered, non-empty list of edge-case values.
// It is read-only once built; callers must not mutate returned values.
type Corpus struct {
	values map[schema.Kind][]any
}

// Sizes of the generated arrays and objects.
var generatedSizes = []int{10, 100, 1000}

// fieldValueLength is the length of the random strings in generated objects.
const fieldValueLength = 8

var (
	defaultOnce   sync.Once
	defaultCorpus *Corpus
)

// Default returns the process-wide corpus.
func Default() *Corpus {
	defaultOnce.Do(func() {
		defaultCorpus = New(rand.New(rand.NewSource(1)))
	})
	return defaultCorpus
}

// New builds a corpus. rng only feeds the random strings inside generated
// objects; a fixed seed yields an identical corpus.
func New(rng *rand.Rand) *Corpus {
	return &Corpus{
		values: map[schema.Kind][]any{
			schema.KindInt:     intValues(),
			schema.KindFloat:   floatValues(),
			schema.KindBoolean: {true, false},
			schema.KindString:  stringValues(),
			schema.KindArray:   arrayValues(),
			schema.KindObject:  objectValues(rng),
		},
	}
}

// Values returns the edge cases for kind.
func (c *Corpus) Values(kind schema.Kind) []any {
	return c.values[kind]
}

// Len returns the number of values for kind.
func (c *Corpus) Len(kind schema.Kind) int {
	return len(c.values[kind])
}

func intValues() []any {
	values := []any{
		math.SmallestNonzeroFloat64,
		float64(schema.MaxSafeInteger),
		float64(schema.MinSafeInteger),
		-1.0,
	}
	for i := 0; i <= 10; i++ {
		values = append(values, float64(i))
	}
	return values
}

func floatValues() []any {
	return []any{math.SmallestNonzeroFloat64, math.MaxFloat64}
}

func stringValues() []any {
	return []any{
		"",
		strings.Repeat(" ", 256),
		// emoji
		"😀😃😄😁😆😅😂🤣🥲☺️😊😇🙂🙃😉😌😍🥰😘😗😙😚😋😛😝😜🤪🤨🧐🤓😎🥸🤩🥳😏😒😞😔😟😕🙁☹️😣😖😫😩🥺😢😭😤😠😡🤬🤯😳🥵🥶😱😨😰😥😓🤗🤔🤭🤫🤥😶😐😑😬🙄😯😦😧😮😲🥱😴🤤😪😵🤐🥴🤢🤮🤧😷🤒🤕🤑🤠😈👿👹👺🤡💩👻💀☠️👽👾🤖🎃😺😸😹😻😼😽🙀😿😾",
		// CJK transliteration with embedded Cyrillic and a tab
		"诶诶必ъ比西ъ西弟ъ迪衣伊艾付\t艾弗记吉爱耻艾尺挨艾宅杰开开饿罗艾勒饿母艾马恩艾娜呕哦披屁酷吉吾耳艾儿艾斯艾丝大波留豆贝尔维埃克斯艾克斯歪吾艾再得贼德",
		// pinyin with combining tone marks
		"zéidéēibǐxīdíyīàifújíàichǐàijiékāiàilèàimǔàinàópìjíwúàiéràisīdòubèiěrwéiyīkèsīwúài",
		"АБВГҐДЂЃЕЁЄЖЗЗ́ЅИІЇЙЈКЛЉМНЊОПРСС́ТЋЌУЎФХЦЧЏШЩЪЫЬЭЮЯ",
		"ӐӘӔҒҔӺӶӁӜӠҠҞӉҢӇҤӨҨҎҪУ̃ӮӰӲҮҲӼӾҺҴҶӋҸҼҌӀꙖѤѦѪѨѬѮѰꙞѲѴѶҀЍѠѾѢ",
		"★☆✡✦✧✩✪✫✬✭✮✯✰⁂⁎⁑✢✣✤✥✱✲✳✴✵✶✷✸✹✺✻✼✽✾✿❀❁❂❃❇❈❉❊❋❄❆❅⋆≛ᕯ✲࿏꙰۞⭒⍟©®™℠℡℗‱№℀℁℅℆⅍☊☎☏⌨✁✂✃✄✆✇✈✉✎✏✐✑✒‰§¶✌☝☛☟☜☚✍¢$€£¥₮৲৳௹฿៛₠₡₢₣₤₥₦₧₨₩₪₫₭₯₰₱₲₳₴₵￥﷼¤ƒ〈〉《》「」『』【】〔〕︵︶︷︸︹︺︻︼︽︾︿﹀﹁﹂﹃﹄﹙﹚﹛﹜﹝﹞﹤﹥（）＜＞｛｝〖〗〘〙〚〛«»‹›〈〉〱♔♕♖♗♘♙♚♛♜♝♞♟♤♠♧♣♡♥♢♦",
	}
}

func arrayValues() []any {
	values := []any{[]any{}}
	for _, size := range generatedSizes {
		values = append(values, sequence(size))
	}
	return values
}

func sequence(size int) []any {
	out := make([]any, size)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func objectValues(rng *rand.Rand) []any {
	values := []any{map[string]any{}}
	for _, size := range generatedSizes {
		obj := make(map[string]any, size)
		for i := 0; i < size; i++ {
			obj[fmt.Sprintf("field%d", i)] = randomString(rng, fieldValueLength)
		}
		values = append(values, obj)
	}
	return values
}

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomString(rng *rand.Rand, n int) string {
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		sb.WriteByte(alphabet[rng.Intn(len(alphabet))])
	}
	return sb.String()
}
