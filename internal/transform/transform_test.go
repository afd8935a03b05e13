package transform

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/devlens/internal/errors"
	"github.com/conneroisu/devlens/internal/logging"
	"github.com/conneroisu/devlens/internal/marker"
)

const landingPage = `---
import Hero from '../components/Hero.astro';
import Features from '../components/Features.astro';
import Footer from '../components/Footer.astro';
import heroData from '../data/hero.json';
import featuresData from '../data/features.json';
---
<main>
  <Hero data={heroData} />
  <Features items={featuresData.items} />
  <Footer />
</main>
`

func newTestPass() *Pass {
	return NewPass(DefaultOptions(), logging.Discard())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"src/pages/index.astro", KindPage},
		{"src/pages/blog/post.astro", KindPage},
		{"src/layouts/Base.astro", KindLayout},
		{"src/components/Hero.astro", KindOther},
		{"pages", KindOther},
		{"src/pagesx/index.astro", KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.path))
		})
	}
}

func TestTransformWrapsEligibleInvocations(t *testing.T) {
	res := newTestPass().Transform(context.Background(), "src/pages/index.astro", landingPage)
	require.True(t, res.Changed, res.Skipped)
	require.Len(t, res.Invocations, 2)

	hero := res.Invocations[0]
	assert.Equal(t, "Hero", hero.Name)
	assert.Equal(t, "hero.json", hero.DataPath)
	assert.Equal(t, "hero-0", hero.ID)
	assert.Equal(t, 0, hero.Order)
	assert.Equal(t, `<Hero data={heroData} />`, landingPage[hero.Start:hero.End])

	features := res.Invocations[1]
	assert.Equal(t, "features.json", features.DataPath)
	assert.Equal(t, "featuresData.items", features.Prop)
	assert.Equal(t, "features-1", features.ID)

	assert.Contains(t, res.Source,
		`<div data-component-name="Hero" data-component-path="hero.json" data-component-id="hero-0" data-component-order="0" data-component-props={JSON.stringify(heroData)} style="display: contents"><Hero data={heroData} /></div>`)
	assert.Contains(t, res.Source, `data-component-id="features-1"`)
	assert.Equal(t, 2, strings.Count(res.Source, marker.AttrName+"="))
	assert.Contains(t, res.Source, "  <Footer />\n")
	assert.False(t, res.Mounted)
}

func TestTransformIsIdempotent(t *testing.T) {
	pass := newTestPass()
	first := pass.Transform(context.Background(), "src/pages/index.astro", landingPage)
	require.True(t, first.Changed)

	second := pass.Transform(context.Background(), "src/pages/index.astro", first.Source)
	assert.False(t, second.Changed)
	assert.Equal(t, first.Source, second.Source)
	assert.Equal(t, "already instrumented", second.Skipped)
}

func TestTransformSkipsConditionalAndLoopInvocations(t *testing.T) {
	src := `---
import Card from '../components/Card.astro';
import Hero from '../components/Hero.astro';
import cardsData from '../data/cards.json';
import heroData from '../data/hero.json';
---
{showHero && <Hero data={heroData} />}
{cardsData.map((card) => <Card data={cardsData} />)}
<Hero data={heroData} />
`
	res := newTestPass().Transform(context.Background(), "src/pages/index.astro", src)
	require.True(t, res.Changed)
	require.Len(t, res.Invocations, 1)
	assert.Equal(t, "hero-0", res.Invocations[0].ID)
	assert.Equal(t, 1, strings.Count(res.Source, marker.AttrName+"="))
	assert.Contains(t, res.Source, "{showHero && <Hero data={heroData} />}")
}

func TestTransformDataSuffixAndIndexedPaths(t *testing.T) {
	src := `---
import Section from '../components/Section.astro';
import listData from '../data/content/list.json';
const heroSectionData = { title: 'x' };
---
<Section data={heroSectionData} />
<Section data={listData[2]} />
<Section data={listData} />
`
	invs, err := newTestPass().Invocations("src/pages/index.astro", src)
	require.NoError(t, err)
	require.Len(t, invs, 3)
	assert.Equal(t, "hero-section.json", invs[0].DataPath)
	assert.Equal(t, "content/list.json[2]", invs[1].DataPath)
	assert.Equal(t, "content/list.json", invs[2].DataPath)
	for i, inv := range invs {
		assert.Equal(t, i, inv.Order)
	}
}

func TestTransformRequiresComponentAndDataImports(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			name: "no data import",
			src: `---
import Hero from '../components/Hero.astro';
const heroData = {};
---
<Hero data={heroData} />
`,
		},
		{
			name: "no component import",
			src: `---
import Hero from '../widgets/Hero.astro';
import heroData from '../data/hero.json';
---
<Hero data={heroData} />
`,
		},
		{
			name: "prop not bound to data",
			src: `---
import Hero from '../components/Hero.astro';
import heroData from '../data/hero.json';
---
<Hero title="static" data={compute(heroData)} />
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestPass().Transform(context.Background(), "src/pages/index.astro", tt.src)
			assert.False(t, res.Changed)
			assert.Equal(t, tt.src, res.Source)
		})
	}
}

func TestTransformPassesThroughUnparseableSources(t *testing.T) {
	tests := []struct {
		name string
		path string
		src  string
	}{
		{"other file", "src/components/Hero.astro", landingPage},
		{"no frontmatter", "src/pages/index.astro", "<main><Hero data={heroData} /></main>"},
		{"unterminated frontmatter", "src/pages/index.astro", "---\nimport x from 'y';\n<main />"},
		{"broken markup", "src/pages/index.astro", strings.Replace(landingPage, "<Footer />", "<Footer", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestPass().Transform(context.Background(), tt.path, tt.src)
			assert.False(t, res.Changed)
			assert.Equal(t, tt.src, res.Source)
			assert.NotEmpty(t, res.Skipped)
		})
	}
}

func TestTransformLayoutMountsOverlay(t *testing.T) {
	src := `---
import Nav from '../components/Nav.astro';
const { title } = Astro.props;
---
<html>
  <body>
    <Nav />
    <slot />
  </body>
</html>
`
	res := newTestPass().Transform(context.Background(), "src/layouts/Base.astro", src)
	require.True(t, res.Changed)
	assert.True(t, res.Mounted)
	assert.Empty(t, res.Invocations)

	assert.Contains(t, res.Source, "const { title } = Astro.props;\nimport DevOverlay from '@devlens/overlay/DevOverlay.astro';\n---")
	assert.Contains(t, res.Source, "<slot />\n  {import.meta.env.DEV && <DevOverlay />}\n</body>")

	again := newTestPass().Transform(context.Background(), "src/layouts/Base.astro", res.Source)
	assert.False(t, again.Changed)
}

func TestTransformLayoutMountOutsideWrappers(t *testing.T) {
	src := "---\nimport Footer from '../components/Footer.astro';\nimport footerData from '../data/footer.json';\n---\n<body><Footer data={footerData} /></body>"
	res := newTestPass().Transform(context.Background(), "src/layouts/Base.astro", src)
	require.True(t, res.Changed)
	assert.True(t, strings.HasSuffix(res.Source,
		"<Footer data={footerData} /></div>{import.meta.env.DEV && <DevOverlay />}\n</body>"))
}

func TestTransformAdjacentSiblings(t *testing.T) {
	src := "---\nimport A from '../components/A.astro';\nimport aData from '../data/a.json';\n---\n<A data={aData} /><A data={aData} />"
	res := newTestPass().Transform(context.Background(), "src/pages/index.astro", src)
	require.True(t, res.Changed)

	body := res.Source[strings.Index(res.Source, "<div"):]
	assert.Equal(t, 2, strings.Count(body, "<div "))
	first := strings.Index(body, "</div>")
	second := strings.Index(body[1:], "<div ") + 1
	assert.Less(t, first, second, "first wrapper must close before the second opens")
}

func TestInvocationsRejectsOtherFiles(t *testing.T) {
	_, err := newTestPass().Invocations("src/components/Hero.astro", landingPage)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInstrumentation))
}
